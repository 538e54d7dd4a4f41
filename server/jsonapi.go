package server

import (
	"encoding/json"
	"net/http"
)

const contentTypeJSONAPI = "application/vnd.api+json"

type errorObject struct {
	Title string `json:"title"`
}

type errorDocument struct {
	Errors []errorObject `json:"errors"`
}

type resourceLinks struct {
	Self    string `json:"self,omitempty"`
	Related string `json:"related,omitempty"`
}

type resourceIdentifier struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type sessionAttributes struct {
	Name       string   `json:"name"`
	Username   string   `json:"username"`
	UserGroups []string `json:"user-groups"`
}

type sessionData struct {
	Type       string            `json:"type"`
	ID         string            `json:"id"`
	Attributes sessionAttributes `json:"attributes"`
}

type relationship struct {
	Links resourceLinks      `json:"links"`
	Data  resourceIdentifier `json:"data"`
}

type sessionDocument struct {
	Links         resourceLinks           `json:"links"`
	Data          sessionData             `json:"data"`
	Relationships map[string]relationship `json:"relationships"`
}

func newSessionDocument(sessionID, accountID, name, username string, groups []string) sessionDocument {
	if groups == nil {
		groups = []string{}
	}
	return sessionDocument{
		Links: resourceLinks{Self: RouteCurrentSession},
		Data: sessionData{
			Type: "sessions",
			ID:   sessionID,
			Attributes: sessionAttributes{
				Name:       name,
				Username:   username,
				UserGroups: groups,
			},
		},
		Relationships: map[string]relationship{
			"account": {
				Links: resourceLinks{Related: RouteAccounts + "/" + accountID},
				Data:  resourceIdentifier{Type: "accounts", ID: accountID},
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSONAPI)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, title string) {
	writeJSON(w, status, errorDocument{Errors: []errorObject{{Title: title}}})
}
