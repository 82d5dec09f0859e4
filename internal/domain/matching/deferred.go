package matching

import "sort"

// deferred runs student-proposing deferred acceptance. Each round every free
// student proposes to the next project on its list; a project keeps the best
// candidates up to capacity by weight, then student id, and releases the
// rest. The result leaves no student and project that both prefer each
// other over what they hold.
func (st *state) deferred() {
	for {
		proposals := make(map[string][]candidate)
		for _, s := range st.students {
			if s.assigned != nil || s.next >= len(s.voeux) {
				continue
			}
			v := s.voeux[s.next]
			s.next++
			proposals[v.ProjectID] = append(proposals[v.ProjectID], candidate{student: s, voeu: v})
		}
		if len(proposals) == 0 {
			return
		}

		for _, p := range st.projects {
			props := proposals[p.id]
			if len(props) == 0 {
				continue
			}
			pool := make([]candidate, 0, len(p.held)+len(props))
			pool = append(append(pool, p.held...), props...)
			sort.Slice(pool, func(i, j int) bool { return pool[i].before(pool[j]) })

			keep := min(p.capacity, len(pool))
			p.held = append([]candidate(nil), pool[:keep]...)
			for i := range p.held {
				p.held[i].student.assigned = &p.held[i]
			}
			for _, c := range pool[keep:] {
				c.student.assigned = nil
			}
		}
	}
}
