package api

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/ethpandaops/archivoor/pkg/archivestore"
)

// contentTypes maps artefact types to the Content-Type they are served
// with. Screenshots fall back to the file extension.
var contentTypes = map[string]string{
	archivestore.ArtefactCSV:          "text/csv; charset=utf-8",
	archivestore.ArtefactJSON:         "application/json",
	archivestore.ArtefactAnalyzerHTML: "text/html; charset=utf-8",
	archivestore.ArtefactLog:          "text/plain; charset=utf-8",
}

func (s *server) handleTestArtefacts(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, err)

		return
	}

	if _, err := s.store.GetTest(r.Context(), id); err != nil {
		s.writeStoreError(w, "test", err)

		return
	}

	artefacts, err := s.store.ListArtefacts(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "artefacts", err)

		return
	}

	items := make([]artefactResponse, 0, len(artefacts))
	for _, a := range artefacts {
		items = append(items, newArtefactResponse(a))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"test_id":   id,
		"artefacts": items,
	})
}

// handleArtefactContent streams a tracked artefact from the source it was
// imported from.
func (s *server) handleArtefactContent(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		badRequest(w, err)

		return
	}

	a, err := s.store.GetArtefact(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, "artefact", err)

		return
	}

	if s.reader == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"artefact content is not available"})

		return
	}

	rc, err := s.reader.Open(r.Context(), a.FilePath)
	if err != nil {
		s.log.WithError(err).
			WithField("path", a.FilePath).
			Warn("Failed to open artefact")

		writeJSON(w, http.StatusNotFound,
			errorResponse{"artefact file not found"})

		return
	}

	defer func() { _ = rc.Close() }()

	ct, ok := contentTypes[a.ArtefactType]
	if !ok {
		ct = mime.TypeByExtension(path.Ext(a.FilePath))
	}

	if ct == "" {
		ct = "application/octet-stream"
	}

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition",
		"inline; filename="+strconv.Quote(path.Base(a.FilePath)))

	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(w, rc); err != nil {
		s.log.WithError(err).
			WithField("path", a.FilePath).
			Debug("Artefact stream interrupted")
	}
}
