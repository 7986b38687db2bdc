package output

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/vburojevic/dbgsync/internal/domain"
)

// WriteClientTable renders clients as a table.
func WriteClientTable(w io.Writer, clients []*domain.DebugClient) error {
	table := tablewriter.NewWriter(w)
	table.Header("Client", "Project", "Session", "Capabilities", "Panel")
	for _, c := range clients {
		if err := table.Append([]string{
			strconv.FormatUint(uint64(c.ID), 10),
			strconv.FormatUint(uint64(c.ProjectID), 10),
			strconv.FormatUint(uint64(c.SessionID), 10),
			c.Capabilities.String(),
			fmt.Sprintf("%d B", len(c.PanelItem)),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

// WriteSessionTable renders sessions as a table.
func WriteSessionTable(w io.Writer, sessions []*domain.SessionSnapshot) error {
	table := tablewriter.NewWriter(w)
	table.Header("Session", "Project", "Members", "Negotiated")
	for _, s := range sessions {
		if err := table.Append([]string{
			strconv.FormatUint(uint64(s.SessionID), 10),
			strconv.FormatUint(uint64(s.ProjectID), 10),
			keys(s.Members),
			s.Negotiated.String(),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}
