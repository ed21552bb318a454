package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/calmcall/finassist/pkg/budget"
)

type graphRequest struct {
	Nodes []budget.FlowNode `json:"nodes"`
	Links []budget.FlowLink `json:"links"`
}

// decodeGraph reads and normalizes a graph body. With balance set every
// parent's unallocated remainder is routed to the Surplus node.
func decodeGraph(r *http.Request) (budget.Graph, error) {
	var req graphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return budget.Graph{}, errBadJSON
	}

	g, err := budget.Normalize(req.Nodes, req.Links)
	if err != nil {
		return budget.Graph{}, err
	}
	if balance, _ := strconv.ParseBool(r.URL.Query().Get("balance")); balance {
		g, _ = budget.BalanceAll(g)
	}
	return g, nil
}

var errBadJSON = errors.New("request body must be a JSON object")

func writeGraphError(w http.ResponseWriter, err error) {
	if errors.Is(err, budget.ErrInvalidGraphInput) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) normalizeSankey(w http.ResponseWriter, r *http.Request) {
	g, err := decodeGraph(r)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, budget.NewEnvelope(g))
}
