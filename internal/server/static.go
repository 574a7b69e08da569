package server

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
)

// spaHandler serves the built web client from webRoot. Unknown paths fall
// back to index.html so client-side routes such as /chat/<id> resolve.
func spaHandler(webRoot string) echo.HandlerFunc {
	fsys := os.DirFS(webRoot)
	fileServer := http.FileServer(http.FS(fsys))

	return func(c echo.Context) error {
		reqPath := c.Param("*")
		if reqPath == "" {
			reqPath = "index.html"
		}

		// Clean the path to prevent directory traversal
		reqPath = strings.TrimPrefix(path.Clean("/"+reqPath), "/")
		if reqPath == "" {
			reqPath = "index.html"
		}

		if info, err := fs.Stat(fsys, reqPath); err != nil || info.IsDir() {
			reqPath = "index.html"
		}

		if reqPath == "index.html" {
			// FileServer redirects explicit /index.html requests to the directory
			reqPath = ""
		}
		c.Request().URL.Path = "/" + reqPath
		fileServer.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// placeholderPage answers page routes when no web client is configured.
func placeholderPage(c echo.Context) error {
	return c.String(http.StatusOK, "sirchat is running. Set WEB_ROOT to serve the web client.")
}
