package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const catalogYAML = `
deadlines:
  - level: M1
    cutoff: 2026-03-01T23:59:59Z
    max_choice: 2
projects:
  - {id: P1, title: Compilers, supervisor: Dr. Lee, level: M1, number_groups: 1}
  - {id: P2, title: Graphs, supervisor: Dr. Roy, level: M1, number_groups: 2}
  - {id: Q1, title: Robots, supervisor: Dr. Kim, level: L3, number_groups: 3}
students:
  - id: s2
    name: Ben
    level: M1
    voeux:
      - {project_id: P2, weight: 12}
      - {project_id: Q1, weight: 10}
  - id: s1
    name: Ada
    level: M1
    voeux:
      - {project_id: P1, weight: 18}
      - {project_id: P2, weight: 11}
  - {id: t1, name: Cy, level: L3}
`

func TestCatalog(t *testing.T) {
	Convey("Given a catalog parsed from YAML", t, func() {
		ctx := context.Background()
		c, err := ParseCatalog([]byte(catalogYAML), WithDefaultMaxChoice(4))
		So(err, ShouldBeNil)

		Convey("When loading a level", func() {
			in, err := c.LoadLevel(ctx, "M1")
			So(err, ShouldBeNil)

			Convey("Then students and projects are scoped and sorted", func() {
				So(in.MaxChoice, ShouldEqual, 2)
				So(len(in.Projects), ShouldEqual, 2)
				So(in.Students[0].ID, ShouldEqual, "s1")
				So(in.Students[1].ID, ShouldEqual, "s2")
			})

			Convey("Then voeux get positional ranks and the owning student", func() {
				So(in.Students[0].Voeux, ShouldResemble, []model.Voeu{
					{StudentID: "s1", ProjectID: "P1", Rank: 1, Weight: 18},
					{StudentID: "s1", ProjectID: "P2", Rank: 2, Weight: 11},
				})
			})

			Convey("Then voeux for another level's project are dropped", func() {
				So(len(in.Students[1].Voeux), ShouldEqual, 1)
				So(in.Students[1].Voeux[0].ProjectID, ShouldEqual, "P2")
			})
		})

		Convey("When reading deadlines", func() {
			m1, _ := c.Deadline(ctx, "M1")
			l3, _ := c.Deadline(ctx, "L3")

			Convey("Then recorded and default deadlines are returned", func() {
				So(m1.Cutoff.Equal(time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC)), ShouldBeTrue)
				So(l3.MaxChoice, ShouldEqual, 4)
				So(l3.Cutoff.IsZero(), ShouldBeTrue)
			})
		})

		Convey("When replacing voeux", func() {
			err := c.ReplaceVoeux(ctx, "t1", []model.Voeu{{StudentID: "t1", ProjectID: "Q1", Rank: 1, Weight: 7}})
			So(err, ShouldBeNil)

			s, err := c.Student(ctx, "t1")
			So(err, ShouldBeNil)
			So(len(s.Voeux), ShouldEqual, 1)

			Convey("Then unknown students are not found", func() {
				err := c.ReplaceVoeux(ctx, "ghost", nil)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When the catalog is written and read back", func() {
			in, _ := c.LoadLevel(ctx, "M1")
			projects, _ := c.Projects(ctx, "M1")
			data, err := CatalogFile{Projects: projects, Students: in.Students}.Marshal()
			So(err, ShouldBeNil)

			path := filepath.Join(t.TempDir(), "catalog.yaml")
			So(os.WriteFile(path, data, 0o600), ShouldBeNil)

			again, err := LoadCatalogFile(path)
			So(err, ShouldBeNil)
			reloaded, _ := again.LoadLevel(ctx, "M1")
			So(reloaded.Students, ShouldResemble, in.Students)
			So(reloaded.MaxChoice, ShouldEqual, repository.DefaultMaxChoice)
		})
	})

	Convey("Given malformed catalogs", t, func() {
		_, err := ParseCatalog([]byte("projects: [{id: P1}, {id: P1}]"))
		So(errors.Is(err, repository.ErrInvalidCatalog), ShouldBeTrue)

		_, err = ParseCatalog([]byte("students: ["))
		So(errors.Is(err, repository.ErrInvalidCatalog), ShouldBeTrue)

		for _, voeux := range []string{
			"[{project_id: P1, rank: 1}, {project_id: P2, rank: 1}]",
			"[{project_id: P1, rank: 1}, {project_id: P2, rank: 3}]",
			"[{project_id: P1, rank: 2}]",
		} {
			_, err = ParseCatalog([]byte("students: [{id: b, level: M1, voeux: " + voeux + "}]"))
			So(errors.Is(err, repository.ErrInvalidCatalog), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "student b")
		}

		c, err := ParseCatalog([]byte("students: [{id: b, level: M1, voeux: [{project_id: P2, rank: 2}, {project_id: P1, rank: 1}]}]"))
		So(err, ShouldBeNil)
		b, _ := c.Student(context.Background(), "b")
		So(b.Voeux[0].ProjectID, ShouldEqual, "P1")
		So(b.Voeux[1].Rank, ShouldEqual, 2)

		_, err = LoadCatalogFile(filepath.Join(t.TempDir(), "missing.yaml"))
		So(err, ShouldNotBeNil)
	})
}

func TestResultStore(t *testing.T) {
	Convey("Given an empty result store", t, func() {
		ctx := context.Background()
		s := NewResultStore()
		key := model.RunKey{Level: "M1", Algorithm: model.AlgoGreedy}

		Convey("When nothing completed", func() {
			_, err := s.Latest(ctx, key)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("When runs complete", func() {
			So(s.Replace(ctx, repository.Record{RunID: "r1", Key: key}), ShouldBeNil)
			So(s.Replace(ctx, repository.Record{RunID: "r2", Key: key}), ShouldBeNil)
			So(s.Replace(ctx, repository.Record{RunID: "r3", Key: model.RunKey{Level: "M1", Algorithm: model.AlgoDeferred}}), ShouldBeNil)

			Convey("Then the latest record per key wins", func() {
				rec, err := s.Latest(ctx, key)
				So(err, ShouldBeNil)
				So(rec.RunID, ShouldEqual, "r2")
			})
		})

		Convey("When readers race a writer", func() {
			var wg sync.WaitGroup
			for i := range 50 {
				wg.Add(2)
				go func() {
					defer wg.Done()
					_ = s.Replace(ctx, repository.Record{RunID: "r", Key: model.RunKey{Level: model.Level(string(rune('A' + i%5)))}})
				}()
				go func() {
					defer wg.Done()
					_, _ = s.Latest(ctx, key)
				}()
			}
			wg.Wait()

			rec, err := s.Latest(ctx, model.RunKey{Level: "A"})
			So(err, ShouldBeNil)
			So(rec.RunID, ShouldEqual, "r")
		})
	})
}
