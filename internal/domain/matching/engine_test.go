package matching

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/okian/voeux/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func wish(project string, rank, weight int) model.Voeu {
	return model.Voeu{ProjectID: project, Rank: rank, Weight: weight}
}

func stud(id string, voeux ...model.Voeu) model.Student {
	for i := range voeux {
		voeux[i].StudentID = id
	}
	return model.Student{ID: id, Name: "student " + id, Level: "M1", Voeux: voeux}
}

func proj(id string, capacity int) model.Project {
	return model.Project{ID: id, Title: "project " + id, Level: "M1", Capacity: capacity}
}

// randomInput builds a level with more demand than seats.
func randomInput(seed uint64) model.LevelInput {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	in := model.LevelInput{Level: "M1", MaxChoice: 3}
	for i := range 6 {
		in.Projects = append(in.Projects, proj(fmt.Sprintf("p%02d", i), 1+r.IntN(3)))
	}
	for i := range 20 {
		id := fmt.Sprintf("s%02d", i)
		if r.IntN(10) == 0 {
			in.Students = append(in.Students, stud(id))
			continue
		}
		perm := r.Perm(len(in.Projects))
		weight := 20
		var voeux []model.Voeu
		for rank := 1; rank <= in.MaxChoice; rank++ {
			weight -= r.IntN(5)
			voeux = append(voeux, wish(in.Projects[perm[rank-1]].ID, rank, max(weight, 0)))
		}
		in.Students = append(in.Students, stud(id, voeux...))
	}
	return in
}

func shuffled(in model.LevelInput, seed uint64) model.LevelInput {
	r := rand.New(rand.NewPCG(seed, seed))
	out := model.LevelInput{Level: in.Level, MaxChoice: in.MaxChoice}
	out.Students = append(out.Students, in.Students...)
	out.Projects = append(out.Projects, in.Projects...)
	r.Shuffle(len(out.Students), func(i, j int) { out.Students[i], out.Students[j] = out.Students[j], out.Students[i] })
	r.Shuffle(len(out.Projects), func(i, j int) { out.Projects[i], out.Projects[j] = out.Projects[j], out.Projects[i] })
	return out
}

// blockingPair returns a student and project that both prefer each other
// over the allocation, or empty strings.
func blockingPair(in model.LevelInput, alloc model.Allocation) (string, string) {
	weightOf := make(map[string]map[string]int)
	for _, s := range in.Students {
		weightOf[s.ID] = make(map[string]int)
		for _, v := range s.Voeux {
			weightOf[s.ID][v.ProjectID] = v.Weight
		}
	}
	for _, s := range in.Students {
		current := len(s.Voeux) + 1
		if as, ok := alloc.ProjectOf(s.ID); ok {
			current = as.Rank
		}
		for _, v := range s.Voeux {
			if v.Rank >= current {
				continue
			}
			seats, _ := alloc.SeatsOf(v.ProjectID)
			if !seats.Full() {
				return s.ID, v.ProjectID
			}
			for _, held := range seats.Students {
				hw := weightOf[held][v.ProjectID]
				if hw < v.Weight || (hw == v.Weight && held > s.ID) {
					return s.ID, v.ProjectID
				}
			}
		}
	}
	return "", ""
}

func TestGreedyVariant(t *testing.T) {
	Convey("Given two students contesting one seat at the same rank", t, func() {
		in := model.LevelInput{
			Level:     "M1",
			MaxChoice: 2,
			Students: []model.Student{
				stud("s2", wish("P1", 1, 7), wish("P2", 2, 6)),
				stud("s1", wish("P1", 1, 10), wish("P2", 2, 3)),
			},
			Projects: []model.Project{proj("P1", 1), proj("P2", 1)},
		}

		alloc, err := New().Run(model.AlgoGreedy, in)

		Convey("Then the higher weight takes the seat and the other falls to rank two", func() {
			So(err, ShouldBeNil)
			So(alloc.Assignments, ShouldResemble, []model.Assignment{
				{StudentID: "s1", ProjectID: "P1", Rank: 1, Weight: 10},
				{StudentID: "s2", ProjectID: "P2", Rank: 2, Weight: 6},
			})
			So(alloc.Unassigned, ShouldBeEmpty)
		})
	})

	Convey("Given equal weights on one seat", t, func() {
		in := model.LevelInput{
			Level:     "M1",
			MaxChoice: 1,
			Students:  []model.Student{stud("b", wish("P1", 1, 9)), stud("a", wish("P1", 1, 9))},
			Projects:  []model.Project{proj("P1", 1)},
		}

		alloc, err := New().Run(model.AlgoGreedy, in)

		Convey("Then the lowest student id wins", func() {
			So(err, ShouldBeNil)
			So(alloc.Assignments[0].StudentID, ShouldEqual, "a")
			So(alloc.Unassigned, ShouldResemble, []string{"b"})
		})
	})
}

func TestDeferredVariant(t *testing.T) {
	Convey("Given three students and two single-seat projects", t, func() {
		in := model.LevelInput{
			Level:     "M1",
			MaxChoice: 2,
			Students: []model.Student{
				stud("s1", wish("P1", 1, 10), wish("P2", 2, 5)),
				stud("s2", wish("P1", 1, 15), wish("P2", 2, 12)),
				stud("s3", wish("P2", 1, 8), wish("P1", 2, 2)),
			},
			Projects: []model.Project{proj("P1", 1), proj("P2", 1)},
		}

		alloc, err := New().Run(model.AlgoDeferred, in)

		Convey("Then seats go to the strongest claims", func() {
			So(err, ShouldBeNil)
			So(alloc.Assignments, ShouldResemble, []model.Assignment{
				{StudentID: "s2", ProjectID: "P1", Rank: 1, Weight: 15},
				{StudentID: "s3", ProjectID: "P2", Rank: 1, Weight: 8},
			})
			So(alloc.Unassigned, ShouldResemble, []string{"s1"})
		})

		Convey("Then no student and project block the result", func() {
			s, p := blockingPair(in, alloc)
			So(s, ShouldBeEmpty)
			So(p, ShouldBeEmpty)
		})
	})

	Convey("Given a tentative holder displaced by a later proposal", t, func() {
		in := model.LevelInput{
			Level:     "M1",
			MaxChoice: 2,
			Students: []model.Student{
				stud("a", wish("P1", 1, 4), wish("P2", 2, 3)),
				stud("b", wish("P2", 1, 9), wish("P1", 2, 8)),
				stud("c", wish("P2", 1, 11), wish("P1", 2, 1)),
			},
			Projects: []model.Project{proj("P1", 1), proj("P2", 1)},
		}

		alloc, err := New().Run(model.AlgoDeferred, in)

		Convey("Then the displaced student moves down its list", func() {
			So(err, ShouldBeNil)
			b, _ := alloc.ProjectOf("b")
			c, _ := alloc.ProjectOf("c")
			So(c.ProjectID, ShouldEqual, "P2")
			So(b.ProjectID, ShouldEqual, "P1")
			So(alloc.Unassigned, ShouldResemble, []string{"a"})
		})
	})
}

func TestEngineGuarantees(t *testing.T) {
	Convey("Given random levels", t, func() {
		engine := New()

		for seed := uint64(1); seed <= 25; seed++ {
			in := randomInput(seed)
			for _, algo := range model.Algorithms() {
				alloc, err := engine.Run(algo, in)
				So(err, ShouldBeNil)

				So(Verify(in, alloc), ShouldBeNil)
				So(len(alloc.Assignments)+len(alloc.Unassigned)+len(alloc.NoWish), ShouldEqual, len(in.Students))

				again, err := engine.Run(algo, shuffled(in, seed+100))
				So(err, ShouldBeNil)
				So(again, ShouldResemble, alloc)

				if algo == model.AlgoDeferred {
					s, p := blockingPair(in, alloc)
					So(s+p, ShouldBeEmpty)
				}
			}
		}
	})
}

func TestEngineEdgeCases(t *testing.T) {
	Convey("Given edge-case inputs", t, func() {
		engine := New()

		Convey("When a student has no wishes", func() {
			in := model.LevelInput{
				Level:     "M1",
				MaxChoice: 1,
				Students:  []model.Student{stud("s1"), stud("s2", wish("P1", 1, 5))},
				Projects:  []model.Project{proj("P1", 1)},
			}
			alloc, err := engine.Run(model.AlgoDeferred, in)

			Convey("Then it is reported as no-wish and never placed", func() {
				So(err, ShouldBeNil)
				So(alloc.NoWish, ShouldResemble, []string{"s1"})
				So(alloc.Unassigned, ShouldBeEmpty)
				So(len(alloc.Assignments), ShouldEqual, 1)
			})
		})

		Convey("When the level is empty", func() {
			alloc, err := engine.Run(model.AlgoGreedy, model.LevelInput{Level: "L1", MaxChoice: 5})
			So(err, ShouldBeNil)
			So(alloc.Assignments, ShouldBeEmpty)
			So(alloc.Seats, ShouldBeEmpty)
		})

		Convey("When a project has no seats", func() {
			in := model.LevelInput{Level: "M1", Projects: []model.Project{proj("P1", 0)}}
			_, err := engine.Run(model.AlgoGreedy, in)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When a wish names an unknown project", func() {
			in := model.LevelInput{
				Level:    "M1",
				Students: []model.Student{stud("s1", wish("ghost", 1, 5))},
				Projects: []model.Project{proj("P1", 1)},
			}
			_, err := engine.Run(model.AlgoDeferred, in)
			So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "ghost")
		})

		Convey("When a student's ranks are not 1..n", func() {
			ranked := func(voeux ...model.Voeu) model.LevelInput {
				return model.LevelInput{
					Level:     "M1",
					MaxChoice: 2,
					Students:  []model.Student{stud("a", wish("P1", 1, 10)), stud("b", voeux...)},
					Projects:  []model.Project{proj("P1", 1), proj("P2", 1)},
				}
			}
			cases := map[string]model.LevelInput{
				"duplicate": ranked(wish("P1", 1, 5), wish("P2", 1, 5)),
				"zero":      ranked(wish("P1", 0, 5), wish("P2", 1, 5)),
				"gap":       ranked(wish("P1", 1, 5), wish("P2", 3, 5)),
			}

			Convey("Then both algorithms reject the input", func() {
				for _, in := range cases {
					for _, algo := range []model.Algorithm{model.AlgoGreedy, model.AlgoDeferred} {
						_, err := engine.Run(algo, in)
						So(errors.Is(err, ErrInvalidInput), ShouldBeTrue)
						So(err.Error(), ShouldContainSubstring, "student b")
					}
				}
			})
		})

		Convey("When the algorithm is unknown", func() {
			_, err := engine.Run("algo9", model.LevelInput{Level: "M1"})
			So(errors.Is(err, model.ErrUnknownAlgorithm), ShouldBeTrue)
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given an allocation that overfills a project", t, func() {
		in := model.LevelInput{
			Level:    "M1",
			Students: []model.Student{stud("s1", wish("P1", 1, 5)), stud("s2", wish("P1", 1, 4))},
			Projects: []model.Project{proj("P1", 1)},
		}
		alloc := model.Allocation{
			Level:     "M1",
			Algorithm: model.AlgoGreedy,
			Assignments: []model.Assignment{
				{StudentID: "s1", ProjectID: "P1", Rank: 1, Weight: 5},
				{StudentID: "s2", ProjectID: "P1", Rank: 1, Weight: 4},
			},
		}

		err := Verify(in, alloc)

		Convey("Then a capacity conflict names the project", func() {
			var conflict *ConflictError
			So(errors.As(err, &conflict), ShouldBeTrue)
			So(errors.Is(err, ErrCapacityConflict), ShouldBeTrue)
			So(conflict.ProjectID, ShouldEqual, "P1")
			So(conflict.StudentID, ShouldEqual, "s2")
		})
	})

	Convey("Given an assignment outside the student's list", t, func() {
		in := model.LevelInput{
			Level:    "M1",
			Students: []model.Student{stud("s1", wish("P1", 1, 5))},
			Projects: []model.Project{proj("P1", 1), proj("P2", 1)},
		}
		alloc := model.Allocation{Assignments: []model.Assignment{{StudentID: "s1", ProjectID: "P2", Rank: 1, Weight: 5}}}

		So(errors.Is(Verify(in, alloc), ErrCapacityConflict), ShouldBeTrue)
	})
	Convey("Given seat lists that disagree with the assignments", t, func() {
		in := model.LevelInput{
			Level: "M1",
			Students: []model.Student{
				stud("s1", wish("P1", 1, 5), wish("P2", 2, 4)),
				stud("s2", wish("P2", 1, 6)),
			},
			Projects: []model.Project{proj("P1", 1), proj("P2", 2)},
		}
		assignments := []model.Assignment{
			{StudentID: "s1", ProjectID: "P1", Rank: 1, Weight: 5},
			{StudentID: "s2", ProjectID: "P2", Rank: 1, Weight: 6},
		}
		alloc := func(p1, p2 []string) model.Allocation {
			return model.Allocation{
				Level:       "M1",
				Algorithm:   model.AlgoDeferred,
				Assignments: assignments,
				Seats: []model.ProjectSeats{
					{ProjectID: "P1", Capacity: 1, Students: p1},
					{ProjectID: "P2", Capacity: 2, Students: p2},
				},
			}
		}

		Convey("When they agree", func() {
			So(Verify(in, alloc([]string{"s1"}, []string{"s2"})), ShouldBeNil)
		})

		Convey("When a student is seated on the wrong project", func() {
			err := Verify(in, alloc(nil, []string{"s1", "s2"}))
			var conflict *ConflictError
			So(errors.As(err, &conflict), ShouldBeTrue)
			So(conflict.StudentID, ShouldEqual, "s1")
			So(conflict.ProjectID, ShouldEqual, "P2")
		})

		Convey("When a student is seated twice", func() {
			err := Verify(in, alloc([]string{"s1"}, []string{"s1", "s2"}))
			So(errors.Is(err, ErrCapacityConflict), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "also seated")
		})

		Convey("When an assignment has no seat", func() {
			err := Verify(in, alloc([]string{"s1"}, nil))
			var conflict *ConflictError
			So(errors.As(err, &conflict), ShouldBeTrue)
			So(conflict.StudentID, ShouldEqual, "s2")
			So(err.Error(), ShouldContainSubstring, "without a seat")
		})
	})
}
