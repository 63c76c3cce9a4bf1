// Copyright 2026 Syncronizee
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Syncronizee/ib-planner-sub000/syncengine"
)

// newRouter exposes the engine to the desktop shell over loopback HTTP:
//
//	GET  /status  → current sync status snapshot
//	POST /sync    → run one full cycle, respond with the resulting status
//	POST /online  → {"online": bool}, flips connectivity (true may sync)
func newRouter(engine *syncengine.Engine) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, engine.Status())
	})

	r.Post("/sync", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, engine.SyncNow(req.Context()))
	})

	r.Post("/online", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Online bool `json:"online"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, engine.SetOnline(req.Context(), body.Online))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
