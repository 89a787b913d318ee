// Command inspect dumps the message log straight from BadgerDB and lets
// an operator manage ban records without going through the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"realtalk/domain"
	"realtalk/repositories"
)

// diskMessage mirrors the repository's on-disk JSON layout.
type diskMessage struct {
	ID        string              `json:"id"`
	Room      string              `json:"room"`
	Seq       uint64              `json:"seq"`
	AuthorID  string              `json:"author_id"`
	Author    string              `json:"author"`
	Body      string              `json:"body"`
	At        int64               `json:"at"`
	Edited    bool                `json:"edited"`
	Reactions map[string][]string `json:"reactions,omitempty"`
}

func main() {
	dbPath := flag.String("db", "./badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	banUser := flag.String("ban-user", "", "User to update the ban record of (skips the dump)")
	banKind := flag.String("ban-kind", "permanent", "Ban kind: none, temporary or permanent")
	banFor := flag.Duration("ban-for", 24*time.Hour, "Duration of a temporary ban")
	banReason := flag.String("ban-reason", "", "Reason recorded on the ban")
	banBy := flag.String("ban-by", "operator", "Moderator recorded on the ban")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *banUser != "" {
		if err := updateBan(db, *banUser, *banKind, *banFor, *banReason, *banBy); err != nil {
			log.Fatal("Error while updating ban: ", err)
		}
		fmt.Printf("Ban record of %s set to %s\n", *banUser, *banKind)
		return
	}

	if err := dumpMessages(db, *prefix); err != nil {
		log.Fatal("Error while scanning: ", err)
	}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(false).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	return badger.Open(opts)
}

func dumpMessages(db *badger.DB, prefix string) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Seq", "Author", "Body", "Created At", "Edited", "Reactions"})
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

	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			if strings.HasPrefix(string(item.Key()), "idx:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				var msg diskMessage
				if err := json.Unmarshal(v, &msg); err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", string(item.Key()), err)
					return nil
				}

				reactions := lo.MapToSlice(msg.Reactions, func(emoji string, users []string) string {
					return fmt.Sprintf("%s×%d", emoji, len(users))
				})
				table.Append([]string{
					string(item.Key()),
					fmt.Sprintf("%d", msg.Seq),
					msg.Author,
					msg.Body,
					time.Unix(0, msg.At).UTC().Format(time.RFC3339),
					fmt.Sprintf("%t", msg.Edited),
					strings.Join(reactions, " "),
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	table.Render()
	return nil
}

func updateBan(db *badger.DB, userID, kind string, duration time.Duration, reason, by string) error {
	bans := repositories.NewBanRepository(db, logs.GetLoggerFromString("WARN"))
	now := time.Now().UTC()

	state := domain.BanState{
		Kind:     domain.BanKind(kind),
		Reason:   reason,
		BannedBy: by,
		BannedAt: now,
	}
	switch domain.BanKind(kind) {
	case domain.BanNone, domain.BanPermanent:
	case domain.BanTemporary:
		state.Until = now.Add(duration)
	default:
		return fmt.Errorf("unknown ban kind %q", kind)
	}

	return bans.SetBanState(context.Background(), userID, state)
}
