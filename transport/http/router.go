package httptransport

import (
	"github.com/gin-gonic/gin"

	"github.com/datopian/flowmanager/transport/http/handler"
	"github.com/datopian/flowmanager/transport/http/middleware"
)

// NewRouter wires the three endpoints spec.md §6 names under the
// configured route prefix (default "/source/").
func NewRouter(routePrefix string, upload *handler.UploadHandler, update *handler.UpdateHandler, info *handler.InfoHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.Metrics())

	group := r.Group(routePrefix)
	group.POST("upload", upload.Upload)
	group.POST("update", update.Update)
	group.GET(":owner/:dataset/:revision", info.Info)

	return r
}
