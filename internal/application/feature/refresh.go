package feature

import "sort"

// 离线任务名称
const (
	JobPopularity = "popularity"
	JobFactors    = "factors"
	JobAffinity   = "affinity"
	JobEmbeddings = "embeddings"
)

// refreshJobs 每个离线任务刷新的特征
var refreshJobs = map[string][]string{
	JobPopularity: {Popularity, ViewCount},
	JobFactors:    {CFItemFactor, CFUserFactor},
	JobAffinity:   {Affinity, InteractionCount, History},
	JobEmbeddings: {Embedding},
}

// FeaturesForJob 返回离线任务刷新的特征
func FeaturesForJob(job string) ([]string, bool) {
	names, ok := refreshJobs[job]
	if !ok {
		return nil, false
	}
	return append([]string(nil), names...), true
}

// Jobs 返回已知的离线任务（有序）
func Jobs() []string {
	jobs := make([]string, 0, len(refreshJobs))
	for job := range refreshJobs {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)
	return jobs
}
