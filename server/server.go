package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stackrag/stackrag/internal/models"
	"github.com/stackrag/stackrag/internal/types"
	"github.com/stackrag/stackrag/pkg/engine"
)

// Executor runs workflow pipelines. Satisfied by *engine.Engine.
type Executor interface {
	Build(ctx context.Context, key string) (*models.ExecutionResult, error)
	Chat(ctx context.Context, key, message string) (*models.ExecutionResult, error)
}

type Config struct {
	Addr string
}

type Server struct {
	config   Config
	executor Executor
	graphs   types.GraphStore
	files    types.FileStore
	router   *mux.Router
}

func New(config Config, executor Executor, graphs types.GraphStore, files types.FileStore) *Server {
	if config.Addr == "" {
		config.Addr = ":8000"
	}

	s := &Server{
		config:   config,
		executor: executor,
		graphs:   graphs,
		files:    files,
		router:   mux.NewRouter(),
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/workflows/{key}", s.handleGetWorkflow).Methods(http.MethodGet)
	s.router.HandleFunc("/workflows/{key}", s.handlePutWorkflow).Methods(http.MethodPut)
	s.router.HandleFunc("/workflows/{key}/documents", s.handleUpload).Methods(http.MethodPost)
	s.router.HandleFunc("/workflows/{key}/build", s.handleBuild).Methods(http.MethodPost)
	s.router.HandleFunc("/workflows/{key}/chat", s.handleChat).Methods(http.MethodPost)

	return s
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) Start() error {
	log.Printf("listening on %s", s.config.Addr)
	return http.ListenAndServe(s.config.Addr, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	wf, err := s.graphs.Load(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

type workflowBody struct {
	StackID string                 `json:"stack_id"`
	Nodes   []models.Node          `json:"nodes"`
	Edges   []models.Edge          `json:"edges"`
	Data    map[string]interface{} `json:"data"`
}

// handlePutWorkflow upserts the workflow graph: unknown keys are created,
// known keys are replaced wholesale.
func (s *Server) handlePutWorkflow(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var body workflowBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	wf := &models.Workflow{
		ID:      key,
		StackID: body.StackID,
		Nodes:   body.Nodes,
		Edges:   body.Edges,
		Data:    body.Data,
	}
	if wf.Data == nil {
		wf.Data = map[string]interface{}{}
	}

	if err := s.graphs.Save(r.Context(), wf); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// handleUpload stores an uploaded document and attaches its record to the
// workflow's data.documents list, creating the workflow if needed.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing file field"})
		return
	}
	defer file.Close()

	contents, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, err)
		return
	}

	record, err := s.files.Put(contents, header.Filename)
	if err != nil {
		s.writeError(w, err)
		return
	}

	wf, err := s.graphs.Load(r.Context(), key)
	if errors.Is(err, types.ErrNotFound) {
		wf = &models.Workflow{ID: key, Data: map[string]interface{}{}}
	} else if err != nil {
		s.writeError(w, err)
		return
	}
	if wf.Data == nil {
		wf.Data = map[string]interface{}{}
	}

	docs, _ := wf.Data["documents"].([]interface{})
	docs = append(docs, map[string]interface{}{
		"id":        record.ID,
		"file_name": record.FileName,
		"path":      record.Path,
	})
	wf.Data["documents"] = docs

	if err := s.graphs.Save(r.Context(), wf); err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

type buildResponse struct {
	StackID     string             `json:"stack_id"`
	Answer      string             `json:"answer"`
	ContextUsed models.ContextUsed `json:"context_used"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	result, err := s.executor.Build(r.Context(), key)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, buildResponse{
		StackID:     key,
		Answer:      result.Answer,
		ContextUsed: result.ContextUsed,
	})
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response    string             `json:"response"`
	ContextUsed models.ContextUsed `json:"context_used"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	result, err := s.executor.Chat(r.Context(), key, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:    result.Answer,
		ContextUsed: result.ContextUsed,
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var notFound *engine.NotFoundError
	var validation *engine.ValidationError
	var generation *engine.GenerationError
	switch {
	case errors.As(err, &notFound) || errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &generation):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		log.Printf("request failed: %v", err)
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("error writing response: %v", err)
	}
}
