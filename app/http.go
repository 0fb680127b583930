package app

import (
	"github.com/gcexplain/gcexplain/gce"

	"net/http"

	"github.com/googollee/go-socket.io"
	"github.com/gorilla/mux"
)

var SetupFuncs []func(*socketio.Server)
var Router = mux.NewRouter()

func init() {
	Router.HandleFunc("/ops", func(w http.ResponseWriter, r *http.Request) {
		gce.JsonResponse(w, gce.TrainOpNames())
	}).Methods("GET")
}
