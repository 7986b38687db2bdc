package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/vburojevic/dbgsync/internal/store"
)

// SchemaCmd outputs JSON Schema for dbgsync output types, or the SQL schema
type SchemaCmd struct {
	Type []string `short:"t" help:"Output types to include (session_started,membership_changed,session_observerless,panel_update,delivery,error). Default: all"`
	SQL  bool     `help:"Print the SQLite schema instead"`
}

var schemaTypes = []string{"session_started", "membership_changed", "session_observerless", "panel_update", "delivery", "error"}

// Run executes the schema command
func (c *SchemaCmd) Run(globals *Globals) error {
	if c.SQL {
		_, err := fmt.Fprintln(globals.Stdout, strings.TrimSpace(store.SchemaDDL))
		return err
	}

	schemas := map[string]interface{}{
		"session_started":      sessionStartedSchema(),
		"membership_changed":   membershipChangedSchema(),
		"session_observerless": sessionObserverlessSchema(),
		"panel_update":         panelUpdateSchema(),
		"delivery":             deliverySchema(),
		"error":                errorSchema(),
	}

	typesToOutput := c.Type
	if len(typesToOutput) == 0 {
		typesToOutput = schemaTypes
	}
	unknown := lo.Filter(typesToOutput, func(t string, _ int) bool {
		_, ok := schemas[strings.ToLower(strings.TrimSpace(t))]
		return !ok
	})
	if len(unknown) > 0 {
		return outputErrorCommon(globals, "INVALID_FLAGS",
			fmt.Sprintf("unknown schema type(s): %s", strings.Join(unknown, ", ")),
			"valid types: "+strings.Join(schemaTypes, ", "))
	}

	output := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "dbgsync Output Schemas",
		"description": "JSON Schema definitions for all dbgsync NDJSON output types",
		"definitions": map[string]interface{}{},
	}
	defs := output["definitions"].(map[string]interface{})
	for _, t := range typesToOutput {
		t = strings.ToLower(strings.TrimSpace(t))
		defs[t] = schemas[t]
	}

	encoder := json.NewEncoder(globals.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func constType(name string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "const": name}
}

func clientKeySchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"description": description,
		"properties": map[string]interface{}{
			"client_id":  map[string]interface{}{"type": "integer"},
			"project_id": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"client_id", "project_id"},
	}
}

func capabilitiesSchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"minimum":     0,
		"maximum":     255,
		"description": description + " Bits: 0 loaded_sources, 1 modules, 2 restart, 3 set_expression, 4 single_thread_execution, 5 step_back, 6 stepping_granularity, 7 terminate_threads",
	}
}

func sessionStartedSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Session Started",
		"description": "The first client attached to a debug session",
		"properties": map[string]interface{}{
			"type":          constType("session_started"),
			"schemaVersion": map[string]interface{}{"type": "integer"},
			"project_id":    map[string]interface{}{"type": "integer"},
			"session_id":    map[string]interface{}{"type": "integer"},
			"client":        clientKeySchema("The attaching client"),
			"scenario": map[string]interface{}{
				"type":        "object",
				"description": "Debug scenario that started the session, when known",
				"properties": map[string]interface{}{
					"label":   map[string]interface{}{"type": "string"},
					"adapter": map[string]interface{}{"type": "string", "enum": []string{"javascript", "python", "lldb", "gdb", "go", "php", "custom"}},
					"request": map[string]interface{}{"type": "string", "enum": []string{"launch", "attach"}},
				},
			},
			"timestamp": map[string]interface{}{"type": "string", "format": "date-time"},
		},
		"required": []string{"type", "project_id", "session_id", "client", "timestamp"},
	}
}

func membershipChangedSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Membership Changed",
		"description": "A session gained or lost a client, or a member's capabilities changed",
		"properties": map[string]interface{}{
			"type":          constType("membership_changed"),
			"schemaVersion": map[string]interface{}{"type": "integer"},
			"project_id":    map[string]interface{}{"type": "integer"},
			"session_id":    map[string]interface{}{"type": "integer"},
			"reason": map[string]interface{}{
				"type": "string",
				"enum": []string{"attach", "detach", "disconnect", "project_deleted", "renegotiate"},
			},
			"client": clientKeySchema("The client that joined, left or renegotiated"),
			"members": map[string]interface{}{
				"type":        "array",
				"items":       clientKeySchema("A member"),
				"description": "Members after the change, in registration order",
			},
			"negotiated_capabilities": capabilitiesSchema("Union of the members' capabilities."),
			"timestamp":               map[string]interface{}{"type": "string", "format": "date-time"},
		},
		"required": []string{"type", "session_id", "reason", "client", "members", "negotiated_capabilities"},
	}
}

func sessionObserverlessSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Session Observerless",
		"description": "The last client left; the adapter may be detached or terminated",
		"properties": map[string]interface{}{
			"type":          constType("session_observerless"),
			"schemaVersion": map[string]interface{}{"type": "integer"},
			"project_id":    map[string]interface{}{"type": "integer"},
			"session_id":    map[string]interface{}{"type": "integer"},
			"reason":        map[string]interface{}{"type": "string"},
			"last_client":   clientKeySchema("The client whose removal emptied the session"),
			"timestamp":     map[string]interface{}{"type": "string", "format": "date-time"},
		},
		"required": []string{"type", "session_id", "reason", "last_client"},
	}
}

func panelUpdateSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Panel Update",
		"description": "One client's new panel state, addressed to one peer",
		"properties": map[string]interface{}{
			"type":          constType("panel_update"),
			"schemaVersion": map[string]interface{}{"type": "integer"},
			"message_id":    map[string]interface{}{"type": "string", "description": "Shared by every copy of one update"},
			"project_id":    map[string]interface{}{"type": "integer"},
			"session_id":    map[string]interface{}{"type": "integer"},
			"from":          clientKeySchema("Sender"),
			"to":            clientKeySchema("Recipient"),
			"seq":           map[string]interface{}{"type": "integer", "description": "Sender's update counter, increasing per sender"},
			"panel_item":    map[string]interface{}{"type": "string", "contentEncoding": "base64", "description": "Opaque panel state"},
		},
		"required": []string{"type", "message_id", "from", "to", "seq", "panel_item"},
	}
}

func deliverySchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Delivery",
		"description": "An envelope handed to a peer",
		"properties": map[string]interface{}{
			"type":          constType("delivery"),
			"schemaVersion": map[string]interface{}{"type": "integer"},
			"id":            map[string]interface{}{"type": "string"},
			"kind":          map[string]interface{}{"type": "string", "enum": []string{"panel_update", "membership_changed"}},
			"from":          clientKeySchema("Sender"),
			"to":            clientKeySchema("Recipient"),
			"payload":       map[string]interface{}{"type": "object"},
		},
		"required": []string{"type", "id", "kind", "to", "payload"},
	}
}

func errorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":        "object",
		"title":       "Error",
		"description": "Error message",
		"properties": map[string]interface{}{
			"type":          constType("error"),
			"schemaVersion": map[string]interface{}{"type": "integer"},
			"code": map[string]interface{}{
				"type":        "string",
				"description": "Error code (e.g., DUPLICATE_CLIENT, NOT_FOUND, UNKNOWN_CLIENT, PROJECT_GONE)",
			},
			"message": map[string]interface{}{"type": "string"},
			"hint":    map[string]interface{}{"type": "string"},
		},
		"required": []string{"type", "code", "message"},
	}
}
