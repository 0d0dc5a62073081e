/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

// go-amp1394 API
//
// RESTful APIs to interact with motor amplifier boards through the
// control server. The document is in swagger.json and is served at
// /swagger.json, rendered at /docs.
package control

import (
	"context"
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-openapi/loads"
	"github.com/go-openapi/runtime/middleware"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/config"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/device"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/flash"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/log"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/session"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/srv"
	"lcsr.jhu.edu/mechatronics/go-amp1394/pkg/srv/control/ifc"
)

//go:embed swagger.json
var swaggerSpec []byte

// QuadHex is a quadlet address and value, both hexadecimal
type QuadHex struct {
	Addr  string `json:"addr"`
	Value string `json:"value"`
}

type BoardList struct {
	Boards []int `json:"boards"`
}

type CurrentSetup struct {
	Channel int    `json:"channel"`
	Value   string `json:"value"`
}

type PowerSetup struct {
	Value string `json:"value"`
}

type FlashSetup struct {
	Words int `json:"words"`
}

type FlashResult struct {
	flash.Stats
	WordsPerSecond float64 `json:"wordsPerSecond"`
}

type ApiServer struct {
	context.Context
	*config.Config
	ctrl    ifc.ControlServer
	handler http.Handler
}

var _ ifc.ApiServer = &ApiServer{}

func NewApiServer(ctx context.Context, cfg *config.Config, ctrl ifc.ControlServer) (*ApiServer, error) {
	log.Info("Initializing API server with address: %s", cfg.Api.Endpoint())

	doc, err := loads.Analyzed(swaggerSpec, "")
	if err != nil {
		return nil, err
	}

	s := &ApiServer{
		Context: ctx,
		Config:  cfg,
		ctrl:    ctrl,
	}
	router := s.configureRouter()
	docs := middleware.Redoc(middleware.RedocOpts{
		BasePath: "/",
		Path:     strings.TrimPrefix(DocsPath, "/"),
		SpecURL:  SpecPath,
		Title:    doc.Spec().Info.Title,
	}, router)
	s.handler = handlers.RecoveryHandler(
		handlers.RecoveryLogger(logWriter{}),
	)(handlers.LoggingHandler(logWriter{}, middleware.Spec("", doc.Raw(), docs)))
	return s, nil
}

// logWriter feeds request logs and recovered panics into the package logger
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Debug("%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (logWriter) Println(v ...interface{}) {
	log.Error("%s", strings.TrimRight(fmt.Sprintln(v...), "\n"))
}

func (s *ApiServer) Handler() http.Handler {
	return s.handler
}

// Run serves the API until the context is done
func (s *ApiServer) Run() error {
	log.Info("Starting API server: address: %s", s.Api.Endpoint())
	httpServer := &http.Server{
		Handler: s.handler,
		Addr:    s.Api.Endpoint(),
	}
	go func() {
		<-s.Done()
		httpServer.Close()
	}()
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *ApiServer) configureRouter() *mux.Router {
	router := mux.NewRouter()
	subRouter := router.PathPrefix(ApiPrefix).Subrouter()
	subRouter.HandleFunc("/boards", s.handleBoards()).Methods("GET")
	subRouter.HandleFunc("/scan", s.handleScan()).Methods("GET")
	subRouter.HandleFunc("/quad/r/{board:[0-9]+}/{addr:0x[0-9a-fA-F]+}", s.handleQuadRead()).Methods("GET")
	subRouter.HandleFunc("/quad/r/{board:[0-9]+}", s.handleQuadReadCached()).Methods("GET")
	subRouter.HandleFunc("/quad/w/{board:[0-9]+}", s.handleQuadWrite()).Methods("POST")
	subRouter.HandleFunc("/board", s.handleSnapshotAll()).Methods("GET")
	subRouter.HandleFunc("/board/{board:[0-9]+}", s.handleSnapshot()).Methods("GET")
	subRouter.HandleFunc("/board/{board:[0-9]+}/current", s.handleCurrent()).Methods("POST")
	subRouter.HandleFunc("/board/{board:[0-9]+}/power", s.handlePower()).Methods("POST")
	subRouter.HandleFunc("/flash/{board:[0-9]+}", s.handleFlashImage()).Methods("GET")
	subRouter.HandleFunc("/flash/{board:[0-9]+}", s.handleFlashDump()).Methods("POST")
	return router
}

// httpStatus maps bus and board errors to response codes
func httpStatus(err error) int {
	var notInSession session.ErrNotInSession
	var notFound session.ErrBoardNotFound
	var keyNotFound srv.ErrKeyNotFound
	var bucketNotFound srv.ErrBucketNotFound
	var channelRange device.ErrChannelRange
	var valueRange device.ErrValueRange
	var boardRange device.ErrBoardRange
	var words flash.ErrWords
	var param srv.ErrInvalidParam
	switch {
	case errors.As(err, &notInSession), errors.As(err, &notFound),
		errors.As(err, &keyNotFound), errors.As(err, &bucketNotFound):
		return http.StatusNotFound
	case errors.As(err, &channelRange), errors.As(err, &valueRange),
		errors.As(err, &boardRange), errors.As(err, &words), errors.As(err, &param):
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func boardVar(r *http.Request) (uint8, error) {
	raw := mux.Vars(r)["board"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, srv.ErrInvalidParam{Name: "board", Value: raw}
	}
	if id >= device.MaxBoards {
		return 0, device.ErrBoardRange{BoardID: int(id)}
	}
	return uint8(id), nil
}

func parseHex32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response: %s", err)
	}
}

func (s *ApiServer) handleBoards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := BoardList{Boards: []int{}}
		for _, id := range s.ctrl.Boards() {
			list.Boards = append(list.Boards, int(id))
		}
		writeJSON(w, list)
	}
}

func (s *ApiServer) handleScan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodes, err := s.ctrl.Scan()
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, nodes)
	}
}

func (s *ApiServer) handleQuadRead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		log.Debug("Handling quadlet read request: board: %s, addr: %s", vars["board"], vars["addr"])

		boardID, err := boardVar(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		addr, err := strconv.ParseUint(vars["addr"], 0, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		value, err := s.ctrl.ReadQuadlet(boardID, addr)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, &QuadHex{
			Addr:  fmt.Sprintf("0x%04x", addr),
			Value: fmt.Sprintf("0x%08x", value),
		})
	}
}

func (s *ApiServer) handleQuadReadCached() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, err := boardVar(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		quadlets, err := s.ctrl.CachedQuadlets(boardID)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		addrs := make([]uint64, 0, len(quadlets))
		for addr := range quadlets {
			addrs = append(addrs, addr)
		}
		sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
		result := make([]*QuadHex, 0, len(addrs))
		for _, addr := range addrs {
			result = append(result, &QuadHex{
				Addr:  fmt.Sprintf("0x%04x", addr),
				Value: fmt.Sprintf("0x%08x", quadlets[addr]),
			})
		}
		writeJSON(w, result)
	}
}

func (s *ApiServer) handleQuadWrite() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, err := boardVar(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		quad := &QuadHex{}
		if err := json.NewDecoder(r.Body).Decode(quad); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Debug("Handling quadlet write request: board: %d addr: %s value: %s", boardID, quad.Addr, quad.Value)

		addr, err := strconv.ParseUint(quad.Addr, 0, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		value, err := parseHex32(quad.Value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.ctrl.WriteQuadlet(boardID, addr, value); err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
	}
}

func (s *ApiServer) handleSnapshotAll() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps, err := s.ctrl.SnapshotAll()
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, snaps)
	}
}

func (s *ApiServer) handleSnapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, err := boardVar(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		snap, err := s.ctrl.Snapshot(boardID)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, snap)
	}
}

func (s *ApiServer) handleCurrent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, err := boardVar(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		setup := &CurrentSetup{}
		if err := json.NewDecoder(r.Body).Decode(setup); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		value, err := parseHex32(setup.Value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Debug("Handling motor current request: board: %d channel: %d value: 0x%x", boardID, setup.Channel, value)
		if err := s.ctrl.SetMotorCurrent(boardID, setup.Channel, value); err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
	}
}

func (s *ApiServer) handlePower() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, err := boardVar(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		setup := &PowerSetup{}
		if err := json.NewDecoder(r.Body).Decode(setup); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		value, err := parseHex32(setup.Value)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.ctrl.SetPower(boardID, value); err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
	}
}

func (s *ApiServer) handleFlashDump() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, err := boardVar(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		setup := &FlashSetup{}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(setup); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		stats, err := s.ctrl.DumpFlash(r.Context(), boardID, setup.Words)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, &FlashResult{Stats: stats, WordsPerSecond: stats.WordsPerSecond()})
	}
}

func (s *ApiServer) handleFlashImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boardID, err := boardVar(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		words, _, err := s.ctrl.FlashImage(boardID)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		data := make([]byte, 2*len(words))
		for i, v := range words {
			binary.LittleEndian.PutUint16(data[2*i:], v)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	}
}
