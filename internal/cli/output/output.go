package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/backup"
	"github.com/FelipeDesigne/pixelart-supabase-sub000/internal/cli/api"
)

// Out is where tables are written. Tests swap it for a buffer.
var Out io.Writer = os.Stdout

// JSON prints v as indented JSON.
func JSON(v interface{}) {
	enc := json.NewEncoder(Out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(Out, 0, 0, 2, ' ', 0)
}

// RequestTable prints requests newest first as returned by the server.
func RequestTable(requests []api.Request) {
	if len(requests) == 0 {
		fmt.Fprintln(Out, "No requests found.")
		return
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tCUSTOMER\tSTATUS\tREAD\tDESCRIPTION\tCREATED")
	for _, r := range requests {
		customer := r.UserID
		if r.User != nil {
			customer = r.User.Email
		}
		read := "-"
		if r.Read {
			read = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, customer, r.Status, read, truncate(r.Description, 40), RelativeTime(r.CreatedAt))
	}
	w.Flush()
}

func ArtworkTable(artworks []api.Artwork) {
	if len(artworks) == 0 {
		fmt.Fprintln(Out, "No artworks found.")
		return
	}
	w := newTable()
	fmt.Fprintln(w, "NAME\tSIZE\tTYPE\tMODIFIED")
	for _, a := range artworks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Name, FormatSize(a.Size), shortMIME(a.ContentType), RelativeTime(a.UpdatedAt))
	}
	w.Flush()
}

func BackupTable(backups []backup.Backup) {
	if len(backups) == 0 {
		fmt.Fprintln(Out, "No backups found.")
		return
	}
	w := newTable()
	fmt.Fprintln(w, "NAME\tFILES\tSIZE\tCREATED")
	for _, b := range backups {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", b.Name, b.Files, FormatSize(b.Bytes), b.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}

// Unread prints the totals followed by a per-customer breakdown.
func Unread(s api.Snapshot) {
	w := newTable()
	fmt.Fprintf(w, "Messages:\t%d\n", s.TotalMessages)
	fmt.Fprintf(w, "Requests:\t%d\n", s.TotalRequests)
	fmt.Fprintf(w, "Total:\t%d\n", s.Total)
	w.Flush()

	users := make(map[string]struct{})
	for id := range s.MessagesByUser {
		users[id] = struct{}{}
	}
	for id := range s.RequestsByUser {
		users[id] = struct{}{}
	}
	if len(users) == 0 {
		return
	}

	ids := make([]string, 0, len(users))
	for id := range users {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(Out)
	w = newTable()
	fmt.Fprintln(w, "USER\tMESSAGES\tREQUESTS")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%d\t%d\n", id, s.MessagesByUser[id], s.RequestsByUser[id])
	}
	w.Flush()
}

// UserInfo prints user details.
func UserInfo(u api.User) {
	w := newTable()
	fmt.Fprintf(w, "Name:\t%s\n", u.Name)
	fmt.Fprintf(w, "Email:\t%s\n", u.Email)
	fmt.Fprintf(w, "Role:\t%s\n", u.Role)
	fmt.Fprintf(w, "ID:\t%s\n", u.ID)
	if u.DriveFolderURL != nil {
		fmt.Fprintf(w, "Drive folder:\t%s\n", *u.DriveFolderURL)
	}
	w.Flush()
}

func VersionInfo(cliVersion string, server *api.VersionInfo, serverErr error) {
	w := newTable()
	fmt.Fprintf(w, "CLI:\t%s\n", cliVersion)
	if server != nil {
		fmt.Fprintf(w, "Server:\t%s (%s)\n", server.Version, server.APIVersion)
	} else if serverErr != nil {
		fmt.Fprintf(w, "Server:\tunreachable (%v)\n", serverErr)
	}
	w.Flush()
}

// FormatSize converts bytes to a human-readable string.
func FormatSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// RelativeTime formats a timestamp relative to now (e.g. "2h ago", "3d ago").
func RelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}

// "image/png" -> "png"
func shortMIME(mime string) string {
	parts := strings.Split(mime, "/")
	if len(parts) == 2 {
		s := parts[1]
		if idx := strings.LastIndex(s, "."); idx >= 0 {
			s = s[idx+1:]
		}
		return s
	}
	return mime
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
