package entity

import "sort"

// User 用户画像，字段均由事件聚合或离线任务产出
type User struct {
	ID               string             `json:"id"`
	InteractionCount int                `json:"interaction_count"`
	CategoryAffinity map[string]float64 `json:"category_affinity,omitempty"`
	// History 最近交互过的商品 ID，按时间倒序
	History []string `json:"history,omitempty"`
	// Factor CF 用户隐向量，冷启动用户为空
	Factor []float32 `json:"-"`
}

// HasFactor 是否存在 CF 隐向量
func (u *User) HasFactor() bool {
	return u != nil && len(u.Factor) > 0
}

// TopCategories 按亲和度降序返回前 n 个类目，分值相同时按名称升序
func (u *User) TopCategories(n int) []string {
	if u == nil || len(u.CategoryAffinity) == 0 || n <= 0 {
		return nil
	}
	cats := make([]string, 0, len(u.CategoryAffinity))
	for c, v := range u.CategoryAffinity {
		if v > 0 {
			cats = append(cats, c)
		}
	}
	sort.Slice(cats, func(i, j int) bool {
		a, b := u.CategoryAffinity[cats[i]], u.CategoryAffinity[cats[j]]
		if a != b {
			return a > b
		}
		return cats[i] < cats[j]
	})
	if len(cats) > n {
		cats = cats[:n]
	}
	return cats
}
