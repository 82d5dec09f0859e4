package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/voeux/internal/adapters/http/api"
	service "github.com/okian/voeux/internal/app"
	"github.com/okian/voeux/internal/adapters/repository"
	"github.com/okian/voeux/internal/domain/model"
	"github.com/okian/voeux/internal/domain/preference"
	"github.com/okian/voeux/internal/domain/types"
)

type mockDependencies struct {
	runErr    error
	readErr   error
	submitErr error

	runLevel  model.Level
	runAlgo   string
	submitted []preference.Wish
}

func (m *mockDependencies) Run(_ context.Context, level model.Level, algorithm string) (types.Report, error) {
	m.runLevel, m.runAlgo = level, algorithm
	if m.runErr != nil {
		return types.Report{}, m.runErr
	}
	return types.Report{
		Level:     level,
		Algorithm: model.Algorithm(algorithm),
		RunID:     "run-1",
		Stats:     types.Stats{TotalStudents: 3, AssignedCount: 2, UnassignedCount: 1, SatisfactionScore: 80},
	}, nil
}

func (m *mockDependencies) Report(_ context.Context, level model.Level, algorithm string) (types.Report, error) {
	if m.readErr != nil {
		return types.Report{}, m.readErr
	}
	if algorithm == "" {
		algorithm = "algo1"
	}
	return types.Report{Level: level, Algorithm: model.Algorithm(algorithm), RunID: "run-1"}, nil
}

func (m *mockDependencies) Status(level model.Level, algorithm string) (model.RunStatus, error) {
	if m.readErr != nil {
		return model.RunStatus{}, m.readErr
	}
	return model.RunStatus{Level: level, Algorithm: model.Algorithm(algorithm), State: model.RunRunning, RunID: "run-2"}, nil
}

func (m *mockDependencies) Assignments(_ context.Context, _ model.Level, _ string) ([]model.Assignment, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	return []model.Assignment{{StudentID: "s1", ProjectID: "P1", Rank: 1, Weight: 10}}, nil
}

func (m *mockDependencies) SubmitVoeux(_ context.Context, studentID string, wishes []preference.Wish) ([]model.Voeu, error) {
	m.submitted = wishes
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	out := make([]model.Voeu, len(wishes))
	for i, w := range wishes {
		out[i] = model.Voeu{StudentID: studentID, ProjectID: w.ProjectID, Rank: i + 1, Weight: w.Weight}
	}
	return out, nil
}

type mockStatsProvider struct {
	stats map[string]any
}

func (m *mockStatsProvider) GetStats() map[string]any {
	return m.stats
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
	Rank    int    `json:"rank"`
}

func newMux(deps *mockDependencies) *http.ServeMux {
	mux := http.NewServeMux()
	server := api.NewServer(deps, &mockStatsProvider{stats: map[string]any{"started": true}})
	server.Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) errorBody {
	var body errorBody
	So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
	return body
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		mux := newMux(&mockDependencies{})

		Convey("Then health serves the metrics exposition", func() {
			w := do(mux, http.MethodGet, "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("Then stats are served as JSON", func() {
			w := do(mux, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(w.Body.String(), ShouldContainSubstring, `"started":true`)
		})

		Convey("Then wrong methods are not found", func() {
			So(do(mux, http.MethodGet, "/assignment-run", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/assignment-report?level=M1", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodGet, "/voeux", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(mux, http.MethodPost, "/stats", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestAssignmentRun(t *testing.T) {
	Convey("Given the assignment-run endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When a run completes", func() {
			w := do(mux, http.MethodPost, "/assignment-run", `{"level":" M1 ","algorithm":"algo2"}`)

			Convey("Then it answers 201 with the report", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.runLevel, ShouldEqual, model.Level("M1"))
				So(deps.runAlgo, ShouldEqual, "algo2")

				var report types.Report
				So(json.Unmarshal(w.Body.Bytes(), &report), ShouldBeNil)
				So(report.RunID, ShouldEqual, "run-1")
				So(report.Stats.SatisfactionScore, ShouldEqual, 80)
				So(w.Body.String(), ShouldContainSubstring, `"unassigned":{"no_wish":`)
				So(w.Body.String(), ShouldContainSubstring, `"suggestions":{"duplicate_candidates":`)
			})
		})

		cases := []struct {
			name   string
			err    error
			status int
			code   string
		}{
			{"the level is busy", fmt.Errorf("level M1: %w", service.ErrConcurrentRun), http.StatusConflict, "run_in_progress"},
			{"the queue is full", service.ErrBackpressure, http.StatusTooManyRequests, "backpressure"},
			{"the algorithm is unknown", fmt.Errorf("%w: %q", model.ErrUnknownAlgorithm, "algo9"), http.StatusBadRequest, "bad_request"},
			{"the level is unknown", service.ErrUnknownLevel, http.StatusBadRequest, "bad_request"},
			{"the service is stopped", service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
			{"the caller gave up", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
			{"something unexpected happens", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
		}
		for _, tc := range cases {
			Convey("When "+tc.name, func() {
				deps.runErr = tc.err
				w := do(mux, http.MethodPost, "/assignment-run", `{"level":"M1","algorithm":"algo1"}`)

				Convey(fmt.Sprintf("Then it answers %d %s", tc.status, tc.code), func() {
					So(w.Code, ShouldEqual, tc.status)
					So(decodeError(w).Code, ShouldEqual, tc.code)
				})
			})
		}

		Convey("When a run fails", func() {
			deps.runErr = fmt.Errorf("%w: %w", service.ErrRunFailed, errors.New("capacity conflict on P1 for s7"))
			w := do(mux, http.MethodPost, "/assignment-run", `{"level":"M1","algorithm":"algo1"}`)

			Convey("Then the failure is generic", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decodeError(w)
				So(body.Code, ShouldEqual, "assignment_failed")
				So(body.Message, ShouldNotContainSubstring, "s7")
			})
		})

		Convey("When a busy level is reported", func() {
			deps.runErr = service.ErrConcurrentRun
			w := do(mux, http.MethodPost, "/assignment-run", `{"level":"M1","algorithm":"algo1"}`)

			Convey("Then clients are told to retry", func() {
				So(w.Header().Get("Retry-After"), ShouldEqual, "1")
			})
		})

		Convey("When the body is malformed", func() {
			So(do(mux, http.MethodPost, "/assignment-run", `{"level":`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/assignment-run", `{"algorithm":"algo1"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodPost, "/assignment-run", `{"level":"M1","extra":1}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestAssignmentReads(t *testing.T) {
	Convey("Given the read endpoints", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)

		Convey("When the report is requested without algorithm", func() {
			w := do(mux, http.MethodGet, "/assignment-report?level=M1", "")

			Convey("Then algo1 is served", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"algorithm":"algo1"`)
			})
		})

		Convey("When no completed run exists", func() {
			deps.readErr = fmt.Errorf("run M1/algo2: %w", repository.ErrNotFound)

			Convey("Then report and assignments answer 404", func() {
				w := do(mux, http.MethodGet, "/assignment-report?level=M1&algorithm=algo2", "")
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decodeError(w).Code, ShouldEqual, "not_found")
				So(do(mux, http.MethodGet, "/assignments?level=M1", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the level is missing", func() {
			So(do(mux, http.MethodGet, "/assignment-report", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/assignment-status?algorithm=algo1", "").Code, ShouldEqual, http.StatusBadRequest)
			So(do(mux, http.MethodGet, "/assignments", "").Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the status is requested", func() {
			w := do(mux, http.MethodGet, "/assignment-status?level=M1&algorithm=algo2", "")

			Convey("Then the runner state is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var st model.RunStatus
				So(json.Unmarshal(w.Body.Bytes(), &st), ShouldBeNil)
				So(st.State, ShouldEqual, model.RunRunning)
				So(st.RunID, ShouldEqual, "run-2")
			})
		})

		Convey("When the assignments are requested", func() {
			w := do(mux, http.MethodGet, "/assignments?level=M1", "")

			Convey("Then the placements are listed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, `"algorithm":"algo1"`)
				So(w.Body.String(), ShouldContainSubstring, `{"student_id":"s1","project_id":"P1","rank":1,"weight":10}`)
			})
		})
	})
}

func TestVoeuxSubmit(t *testing.T) {
	Convey("Given the voeux endpoint", t, func() {
		deps := &mockDependencies{}
		mux := newMux(deps)
		body := `{"student_id":"s1","wishes":[{"project_id":"P1","weight":12},{"project_id":"P2","weight":9}]}`

		Convey("When a draft is accepted", func() {
			w := do(mux, http.MethodPost, "/voeux", body)

			Convey("Then the ranked list is returned", func() {
				So(w.Code, ShouldEqual, http.StatusCreated)
				So(deps.submitted, ShouldResemble, []preference.Wish{{ProjectID: "P1", Weight: 12}, {ProjectID: "P2", Weight: 9}})
				So(w.Body.String(), ShouldContainSubstring, `"rank":2`)
			})
		})

		Convey("When a draft is rejected", func() {
			deps.submitErr = &preference.ValidationError{Kind: preference.ErrNonMonotonic, Rank: 2, ProjectID: "P2"}
			w := do(mux, http.MethodPost, "/voeux", body)

			Convey("Then it answers 422 with the reason", func() {
				So(w.Code, ShouldEqual, http.StatusUnprocessableEntity)
				e := decodeError(w)
				So(e.Code, ShouldEqual, "validation_error")
				So(e.Reason, ShouldEqual, "non_monotonic")
				So(e.Rank, ShouldEqual, 2)
			})
		})

		Convey("When the student is unknown", func() {
			deps.submitErr = fmt.Errorf("student s9: %w", repository.ErrNotFound)
			So(do(mux, http.MethodPost, "/voeux", body).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the student id is missing", func() {
			So(do(mux, http.MethodPost, "/voeux", `{"wishes":[]}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestErrorHelpers(t *testing.T) {
	Convey("Given op-tagged errors", t, func() {
		cause := errors.New("boom")

		So(api.NewKind("op", api.ErrBadRequest).Error(), ShouldEqual, "op: bad request")
		So(errors.Is(api.NewKind("op", api.ErrBadRequest), api.ErrBadRequest), ShouldBeTrue)

		wrapped := api.WrapKind("op", api.ErrBadRequest, cause)
		So(wrapped.Error(), ShouldEqual, "op: bad request: boom")
		So(errors.Is(wrapped, api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(wrapped, cause), ShouldBeTrue)

		So(api.Wrap("op", cause).Error(), ShouldEqual, "op: boom")
		So(api.Wrap("op", nil), ShouldBeNil)
	})
}
