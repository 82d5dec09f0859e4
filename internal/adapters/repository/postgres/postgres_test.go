package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/types"
)

func TestErrorHelpers(t *testing.T) {
	Convey("Given driver errors", t, func() {
		fk := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})
		check := &pgconn.PgError{Code: "23514"}

		So(IsForeignKeyViolation(fk), ShouldBeTrue)
		So(IsForeignKeyViolation(check), ShouldBeFalse)
		So(IsCheckViolation(check), ShouldBeTrue)
		So(IsNoRows(fmt.Errorf("query: %w", pgx.ErrNoRows)), ShouldBeTrue)
		So(IsNoRows(errors.New("other")), ShouldBeFalse)
	})
}

func TestMigrations(t *testing.T) {
	Convey("Given the schema history", t, func() {
		migs := Migrations()

		Convey("Then versions increase and every step has SQL", func() {
			for i, m := range migs {
				So(m.Version, ShouldEqual, i+1)
				So(m.UpSQL, ShouldNotBeBlank)
			}
			So(migs[1].UpSQL, ShouldContainSubstring, "assignment_runs")
		})
	})
}

// TestPostgresRoundTrip runs against a real database when
// VOEUX_TEST_DATABASE_URL points at a disposable one.
func TestPostgresRoundTrip(t *testing.T) {
	url := os.Getenv("VOEUX_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("VOEUX_TEST_DATABASE_URL not set")
	}

	Convey("Given a migrated database", t, func() {
		ctx := context.Background()
		conn, err := Connect(ctx, url)
		So(err, ShouldBeNil)
		Reset(conn.Close)

		So(Migrate(ctx, conn), ShouldBeNil)
		So(Migrate(ctx, conn), ShouldBeNil)

		level := model.Level("T" + uuid.NewString()[:8])
		_, err = conn.Exec(ctx, `INSERT INTO projects (id, title, supervisor, level, number_groups) VALUES ($1, 'Compilers', 'Dr. Lee', $2, 1)`,
			string(level)+"-P1", string(level))
		So(err, ShouldBeNil)
		_, err = conn.Exec(ctx, `INSERT INTO students (id, name, level) VALUES ($1, 'Ada', $2)`, string(level)+"-s1", string(level))
		So(err, ShouldBeNil)

		src := NewSource(conn, WithDefaultMaxChoice(1))

		Convey("When voeux are replaced and the level loaded", func() {
			err := src.ReplaceVoeux(ctx, string(level)+"-s1", []model.Voeu{{ProjectID: string(level) + "-P1", Rank: 1, Weight: 17}})
			So(err, ShouldBeNil)

			in, err := src.LoadLevel(ctx, level)
			So(err, ShouldBeNil)
			So(in.MaxChoice, ShouldEqual, 1)
			So(len(in.Projects), ShouldEqual, 1)
			So(in.Students[0].Voeux[0].Weight, ShouldEqual, 17)

			Convey("Then unknown projects are rejected", func() {
				err := src.ReplaceVoeux(ctx, string(level)+"-s1", []model.Voeu{{ProjectID: "ghost", Rank: 1, Weight: 1}})
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a run result is stored twice", func() {
			store := NewResultStore(conn)
			key := model.RunKey{Level: level, Algorithm: model.AlgoGreedy}
			rec := repository.Record{
				RunID:       uuid.NewString(),
				Key:         key,
				CompletedAt: time.Now().UTC().Truncate(time.Millisecond),
				Allocation: model.Allocation{
					Level: level, Algorithm: model.AlgoGreedy,
					Assignments: []model.Assignment{{StudentID: string(level) + "-s1", ProjectID: string(level) + "-P1", Rank: 1, Weight: 17}},
				},
				Report: types.Report{Level: level, Stats: types.Stats{TotalStudents: 1, AssignedCount: 1, SatisfactionScore: 100}},
			}
			So(store.Replace(ctx, rec), ShouldBeNil)
			rec.RunID = uuid.NewString()
			So(store.Replace(ctx, rec), ShouldBeNil)

			got, err := store.Latest(ctx, key)
			So(err, ShouldBeNil)
			So(got.RunID, ShouldEqual, rec.RunID)
			So(got.Report.Stats.SatisfactionScore, ShouldEqual, 100.0)
			So(got.Allocation.Assignments, ShouldResemble, rec.Allocation.Assignments)

			_, err = store.Latest(ctx, model.RunKey{Level: level, Algorithm: model.AlgoDeferred})
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
