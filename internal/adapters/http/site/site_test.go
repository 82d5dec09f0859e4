package site

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSiteHandler(t *testing.T) {
	Convey("Given a registered site", t, func() {
		mux := http.NewServeMux()
		Register(context.Background(), mux)

		serve := func(method, path string) *httptest.ResponseRecorder {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(method, path, http.NoBody))
			return w
		}

		Convey("Then the root serves the landing page", func() {
			w := serve(http.MethodGet, "/")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/html")
			So(w.Body.String(), ShouldContainSubstring, "/assignment-run")
			So(w.Body.String(), ShouldContainSubstring, `href="/api-docs"`)
		})

		Convey("Then the stylesheet is served", func() {
			w := serve(http.MethodGet, "/style.css")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldContainSubstring, "text/css")
		})

		Convey("Then unknown paths are not found", func() {
			So(serve(http.MethodGet, "/index.html").Code, ShouldEqual, http.StatusNotFound)
			So(serve(http.MethodGet, "/some-asset").Code, ShouldEqual, http.StatusNotFound)
			So(serve(http.MethodPost, "/").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestSiteHandlerWithNilMux(t *testing.T) {
	Convey("Given a nil mux", t, func() {
		Convey("Then registering panics", func() {
			So(func() { Register(context.Background(), nil) }, ShouldPanic)
		})
	})
}
