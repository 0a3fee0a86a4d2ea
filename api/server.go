// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api serves the bridge's operational HTTP surface: inspection of
// both books and the maintenance operations anyone may trigger. Owner-only
// operations are deliberately not exposed here.
package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/luxfi/log"

	"github.com/luxfi/teleport/escrow"
	"github.com/luxfi/teleport/events"
	"github.com/luxfi/teleport/ledger"
)

// HTTPConfig carries the HTTP server timeouts.
type HTTPConfig struct {
	ReadTimeout       time.Duration `json:"readTimeout"`
	ReadHeaderTimeout time.Duration `json:"readHeaderTimeout"`
	WriteTimeout      time.Duration `json:"writeTimeout"`
	IdleTimeout       time.Duration `json:"idleTimeout"`
}

// Config carries the server's dependencies.
type Config struct {
	Log    log.Logger
	Escrow *escrow.Controller
	Ledger *ledger.Ledger

	HTTPConfig      HTTPConfig
	ShutdownTimeout time.Duration
}

// Server routes operational requests to the two bridge components.
type Server struct {
	log    log.Logger
	escrow *escrow.Controller
	ledger *ledger.Ledger

	shutdownTimeout time.Duration
	srv             *http.Server
	listener        net.Listener
}

// New returns a server ready to Dispatch on listener.
func New(cfg Config, listener net.Listener) *Server {
	logger := cfg.Log
	if logger == nil {
		logger = log.NoLog{}
	}

	s := &Server{
		log:             logger,
		escrow:          cfg.Escrow,
		ledger:          cfg.Ledger,
		shutdownTimeout: cfg.ShutdownTimeout,
		listener:        listener,
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       cfg.HTTPConfig.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTPConfig.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTPConfig.WriteTimeout,
		IdleTimeout:       cfg.HTTPConfig.IdleTimeout,
	}
	return s
}

// Handler returns the server's route table.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/v1/journal", s.journal).Methods(http.MethodGet)
	r.HandleFunc("/v1/rebalance", s.rebalance).Methods(http.MethodPost)
	r.HandleFunc("/v1/skim", s.skim).Methods(http.MethodPost)
	return r
}

// Dispatch serves requests until Shutdown or a listener error.
func (s *Server) Dispatch() error {
	s.log.Info("API server listening",
		log.String("addr", s.listener.Addr().String()),
	)
	return s.srv.Serve(s.listener)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

// StatusReply mirrors both books. Under correct operation
// RepresentationSupply equals TotalBridged once the channel queue drains.
type StatusReply struct {
	TotalBridged         uint64 `json:"totalBridged"`
	TargetBuffer         uint64 `json:"targetBuffer"`
	LiquidBalance        uint64 `json:"liquidBalance"`
	ManagedValue         uint64 `json:"managedValue"`
	Beneficiary          string `json:"beneficiary"`
	RepresentationSupply uint64 `json:"representationSupply"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	managed, err := s.escrow.ManagedValue()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, StatusReply{
		TotalBridged:         s.escrow.TotalBridged(),
		TargetBuffer:         s.escrow.TargetBuffer(),
		LiquidBalance:        s.escrow.LiquidBalance(),
		ManagedValue:         managed,
		Beneficiary:          s.escrow.Beneficiary().String(),
		RepresentationSupply: s.ledger.TotalSupply(),
	})
}

// JournalEntry is one record with its kind spelled out.
type JournalEntry struct {
	Kind   string        `json:"kind"`
	Record events.Record `json:"record"`
}

// JournalReply lists the escrow journal in append order.
type JournalReply struct {
	Entries []JournalEntry `json:"entries"`
}

func (s *Server) journal(w http.ResponseWriter, r *http.Request) {
	records := s.escrow.Journal().List()
	entries := make([]JournalEntry, len(records))
	for i, record := range records {
		entries[i] = JournalEntry{
			Kind:   record.Kind().String(),
			Record: record,
		}
	}
	s.writeJSON(w, JournalReply{Entries: entries})
}

func (s *Server) rebalance(w http.ResponseWriter, r *http.Request) {
	if err := s.escrow.Rebalance(r.Context()); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, struct {
		LiquidBalance uint64 `json:"liquidBalance"`
	}{
		LiquidBalance: s.escrow.LiquidBalance(),
	})
}

func (s *Server) skim(w http.ResponseWriter, r *http.Request) {
	if err := s.escrow.SkimYield(r.Context()); err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, struct {
		Beneficiary string `json:"beneficiary"`
	}{
		Beneficiary: s.escrow.Beneficiary().String(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, reply any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(reply); err != nil {
		s.log.Warn("failed to encode reply",
			log.Err(err),
		)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{
		Error: err.Error(),
	})
}
