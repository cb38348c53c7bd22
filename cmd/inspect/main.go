// Command inspect prints the message tree and the membership records of a
// courier data directory. It never writes.
package main

import (
	"context"
	"courier/domain"
	"courier/infrastructure/storage"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

const maxContent = 60

type Config struct {
	StorageRoot    string `envconfig:"STORAGE_ROOT" required:"true"`
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	Colours        bool   `envconfig:"INSPECT_COLOURS" default:"true"`
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// BypassLockGuard lets the inspector run next to a live server
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLogger(nil))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	switch os.Args[1] {
	case "messages":
		err = listMessages(config, db, logger, os.Args[2:])
	case "groups":
		err = listGroups(config, db, logger)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: inspect messages -owner user/alice [-direction inbound|outbound] [-unread]")
	fmt.Fprintln(os.Stderr, "       inspect groups")
}

func listMessages(config Config, db *badger.DB, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	owner := fs.String("owner", "", "owner as kind/name, e.g. user/alice")
	direction := fs.String("direction", "inbound", "inbound or outbound")
	unread := fs.Bool("unread", false, "only unread copies")
	if err := fs.Parse(args); err != nil {
		return err
	}

	identity, err := parseOwner(*owner)
	if err != nil {
		return err
	}
	dir := domain.Inbound
	if *direction == "outbound" {
		dir = domain.Outbound
	}

	store, err := storage.NewFileStore(config.StorageRoot, storage.NewLocationIndex(db, logger), nil, logger)
	if err != nil {
		return err
	}
	messages, err := store.Query(context.Background(), domain.MessageQuery{Owner: identity, Direction: dir, UnreadOnly: *unread})
	if err != nil {
		return err
	}

	table := newTable([]string{"ID", "Time", "From", "To", "State", "Content"})
	for _, m := range messages {
		state := "read"
		if !m.IsRead {
			state = paint(config, color.FgYellow, "unread")
		}
		table.Append([]string{
			m.ID.String()[:8],
			m.Timestamp.Format("2006-01-02 15:04:05"),
			m.Sender().String(),
			m.Recipient().String(),
			state,
			truncate(m.Content),
		})
	}
	table.Render()
	fmt.Println(paint(config, color.FgGreen, fmt.Sprintf("%d %s message(s) for %s", len(messages), dir, identity)))
	return nil
}

func listGroups(config Config, db *badger.DB, logger *slog.Logger) error {
	groups, err := storage.NewGroupRepository(db, logger).LoadGroups()
	if err != nil {
		return err
	}
	table := newTable([]string{"Group", "Creator", "Members", "Created"})
	for _, g := range groups {
		table.Append([]string{g.Name, g.Creator, strings.Join(g.Members, ", "), g.CreatedAt.Format("2006-01-02 15:04:05")})
	}
	table.Render()
	fmt.Println(paint(config, color.FgGreen, fmt.Sprintf("%d group(s)", len(groups))))
	return nil
}

func parseOwner(s string) (domain.Identity, error) {
	kind, name, ok := strings.Cut(s, "/")
	if !ok {
		return domain.Identity{}, fmt.Errorf("owner must look like kind/name, got %q", s)
	}
	k, err := domain.ParseKind(kind)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.NewIdentity(k, name)
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func paint(config Config, c color.Color, s string) string {
	if !config.Colours {
		return s
	}
	return c.Render(s)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxContent {
		return s
	}
	return string(r[:maxContent]) + "..."
}
