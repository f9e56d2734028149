package compiler

import "sort"

// Thống kê sau khi compile filters
type FilterCompilationStats struct {
	Filters      int
	Bundles      int
	Rules        int
	RulesByType  map[string]int
	UniqueFields int
	// số rule type trung bình còn lại trong mỗi bundle
	AverageCandidates float64
}

// FieldFrequency đếm số bundle tham chiếu tới từng field.
type FieldFrequency map[string]int

// Fields trả về các field đã sắp xếp.
func (f FieldFrequency) Fields() []string {
	out := make([]string, 0, len(f))
	for k := range f {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CollectStats duyệt các filter đã compile và gom thống kê.
func CollectStats(filters map[string]*CompiledFilter) (FilterCompilationStats, FieldFrequency) {
	st := FilterCompilationStats{RulesByType: make(map[string]int)}
	freq := make(FieldFrequency)
	for _, f := range filters {
		if f == nil {
			continue
		}
		st.Filters++
		for _, b := range f.bundles {
			st.Bundles++
			freq[b.Key()]++
			for _, t := range b.Types() {
				st.Rules++
				st.RulesByType[t.String()]++
			}
		}
	}
	st.UniqueFields = len(freq)
	if st.Bundles > 0 {
		st.AverageCandidates = float64(st.Rules) / float64(st.Bundles)
	}
	return st, freq
}

// Stats cho một filter.
func (f *CompiledFilter) Stats() FilterCompilationStats {
	st, _ := CollectStats(map[string]*CompiledFilter{"": f})
	return st
}
