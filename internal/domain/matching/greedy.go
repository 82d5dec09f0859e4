package matching

import "sort"

// greedy fills seats rank by rank. At rank r every still unplaced student
// competes for the project listed at r; contested seats go to the highest
// weight, ties to the lowest student id. Placements are final.
func (st *state) greedy() {
	for rank := 1; rank <= st.maxRank; rank++ {
		contests := make(map[string][]candidate)
		for _, s := range st.students {
			if s.assigned != nil {
				continue
			}
			for _, v := range s.voeux {
				if v.Rank == rank {
					contests[v.ProjectID] = append(contests[v.ProjectID], candidate{student: s, voeu: v})
					break
				}
			}
		}

		for _, p := range st.projects {
			cands := contests[p.id]
			if len(cands) == 0 || p.free() == 0 {
				continue
			}
			sort.Slice(cands, func(i, j int) bool { return cands[i].before(cands[j]) })
			for _, c := range cands {
				if p.free() == 0 {
					break
				}
				c := c
				p.held = append(p.held, c)
				c.student.assigned = &c
			}
		}
	}
}
