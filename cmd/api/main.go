package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tomikal"
	"tomikal/sacco"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func main() {
	config, err := tomikal.LoadConfig(".")
	if err != nil {
		log.Fatalf("Unable to load app config: %s", err)
	}

	store, closeStore, err := tomikal.OpenSessionStore(context.Background(), config)
	if err != nil {
		log.Fatalf("Unable to open session store: %s", err)
	}
	defer closeStore()

	client, err := sacco.NewClient(config.ApiUrl)
	if err != nil {
		log.Fatalf("Unable to create api client: %s", err)
	}

	s := NewServer(config, tomikal.NewSession(client, store))

	server := &http.Server{
		Addr:         config.ListenAddr,
		Handler:      routes(s),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("[PORTAL] listening on %s for %s", config.ListenAddr, config.ApiUrl)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("[PORTAL] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("[PORTAL] forced to shutdown: %v", err)
	}
}

func routes(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// the API client gives up after 10 seconds, a screen may make two calls
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", s.Login)
		r.Post("/register", s.Register)

		// logout clears whatever is stored, even a session that no longer reads back
		r.Delete("/session", s.Logout)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireSession)

			r.Get("/session", s.WhoAmI)
			r.Get("/dashboard", s.Dashboard)
			r.Get("/balance", s.Balance)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", s.Transactions)
				r.Post("/", s.CaptureTransaction)
				r.Get("/capture", s.CaptureForm)
				r.Get("/pending", s.PendingTransactions)
				r.Post("/{id}/{action}", s.ReviewTransaction)
			})

			r.Route("/members", func(r chi.Router) {
				r.Get("/pending", s.PendingMembers)
				r.Post("/{id}/{action}", s.ReviewMember)
			})

			r.Route("/loans", func(r chi.Router) {
				r.Get("/", s.Loans)
				r.Get("/approvals", s.LoanApprovals)
				r.Post("/{id}/{action}", s.ReviewLoan)
			})

			r.Route("/loan-request", func(r chi.Router) {
				r.Get("/", s.OpenLoanRequest)
				r.Post("/borrower", s.ChooseBorrower)
				r.Put("/", s.EditLoanRequest)
				r.Post("/", s.SubmitLoanRequest)
			})

			r.Route("/guarantor-requests", func(r chi.Router) {
				r.Get("/", s.GuarantorRequests)
				r.Post("/{id}/{decision}", s.DecideGuarantee)
			})

			r.Route("/repayments", func(r chi.Router) {
				r.Get("/", s.RepaymentForm)
				r.Post("/", s.RecordRepayment)
				r.Get("/pending", s.PendingRepayments)
				r.Post("/{id}/{action}", s.ReviewRepayment)
			})
		})
	})

	return r
}
