package web

import (
	"github.com/kozaktomas/face-recognizer/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	faces := handlers.NewFacesHandler(s.service)

	s.router.Get("/", faces.Root)
	s.router.Get("/health", handlers.HealthCheck)

	s.router.Post("/recognizing-face", faces.Register)
	s.router.Post("/recognizer-face", faces.Recognize)
	s.router.Get("/search-face/{label}", faces.Search)

	s.router.Get("/faces", faces.List)
	s.router.Delete("/faces/{label}", faces.Delete)
}
