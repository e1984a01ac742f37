// Command gosession-gc sweeps expired sessions out of a goSession SQL
// backend from a cron job or one-off shell, bypassing the in-process GC
// interval gate. It supports the same two drivers the library is tested
// against.
//
// Usage:
//
//	gosession-gc -driver pgx -dsn 'postgres://...' \
//	  -session-length 3600 -max-autologin-days 365
//
//	gosession-gc -driver sqlite -dsn app.db -migrate
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/hvolkner/goSession/session"
)

func main() {
	var (
		driver        = flag.String("driver", "sqlite", "database driver: sqlite or pgx")
		dsn           = flag.String("dsn", "", "database connection string")
		sessionLength = flag.Int64("session-length", 3600, "session length in seconds")
		allowAuto     = flag.Bool("allow-autologin", true, "whether autologin sessions are currently allowed")
		maxAutoDays   = flag.Int64("max-autologin-days", 365, "max autologin session age in days, 0 for unlimited")
		migrate       = flag.Bool("migrate", false, "create the schema before sweeping")
		dryRun        = flag.Bool("dry-run", false, "report expired sessions without deleting them")
		timeout       = flag.Duration("timeout", 30*time.Second, "overall operation timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("gosession-gc: -dsn is required")
	}

	bind := session.BindQuestion
	if *driver == "pgx" {
		bind = session.BindDollar
	}

	db, err := sql.Open(*driver, *dsn)
	if err != nil {
		log.Fatal("gosession-gc: ", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	tables := session.DefaultTables()
	if *migrate {
		if err := session.Migrate(ctx, db, tables); err != nil {
			log.Fatal("gosession-gc: migrate: ", err)
		}
	}

	store := session.NewSQLStore(db, tables, bind)
	policy := session.ExpiryPolicy{
		SessionLength:    *sessionLength,
		AllowAutologin:   *allowAuto,
		MaxAutologinDays: *maxAutoDays,
	}

	expired, err := store.ExpiredSessions(ctx, policy, time.Now().Unix())
	if err != nil {
		log.Fatal("gosession-gc: ", err)
	}
	if len(expired) == 0 {
		fmt.Println("nothing to sweep")
		return
	}

	if *dryRun {
		for _, s := range expired {
			fmt.Printf("%s user=%d touched=%d autologin=%v\n",
				s.SessionID, s.UserID, s.TouchedAt, s.Autologin)
		}
		fmt.Printf("%d expired sessions (dry run)\n", len(expired))
		return
	}

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		ids = append(ids, s.SessionID)
	}
	if err := store.DeleteSessions(ctx, ids); err != nil {
		log.Fatal("gosession-gc: ", err)
	}

	fmt.Printf("deleted %d expired sessions\n", len(ids))
	os.Exit(0)
}
