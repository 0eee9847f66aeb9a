// Command nbti is a CLI client for the NBTI guild site.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/beniforreal/nbti-client/internal/guard"
	"github.com/beniforreal/nbti-client/internal/ipinfo"
	"github.com/beniforreal/nbti-client/internal/localstate"
	"github.com/beniforreal/nbti-client/internal/migrate"
	"github.com/beniforreal/nbti-client/internal/model"
	"github.com/beniforreal/nbti-client/internal/service"
	"github.com/beniforreal/nbti-client/internal/session"
	"github.com/beniforreal/nbti-client/internal/store"
	"github.com/beniforreal/nbti-client/internal/store/postgres"
	"github.com/beniforreal/nbti-client/internal/store/rest"
)

const appVersion = "1.0.0"

var (
	version   = "dev"
	buildDate = "unknown"
)

// ---- token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func tokenPath(dir string) string { return filepath.Join(dir, "token.json") }

func saveToken(dir, tok string, exp time.Time) error {
	f, err := os.Create(tokenPath(dir))
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

func loadToken(dir string) (string, error) {
	b, err := os.ReadFile(tokenPath(dir))
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login required)")
	}
	return tf.AccessToken, nil
}

// ---- helpers ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `nbti CLI
Usage:
  nbti -api URL [-bucket NAME | -dsn POSTGRES_DSN] <cmd> [args]

Commands:
  version
  login        -u <email> -p <password>       (saves token)
  logout
  whoami
  members      [-all]
  member-add   -name <name> [-email -role -order]
  member-rm    -id <id>
  photos
  upload       -file <path> [-folder img]
  notices
  notice       -id <id>
  notice-add   -title <title> -content <text> [-author]
  notice-rm    -id <id>
  unban        -ip <addr>
`)
	os.Exit(2)
}

// main wires the stores, runs the guard startup sequence, and dispatches
// subcommands.
func main() {
	api := flag.String("api", "https://api.nbti.example.com", "backend base URL")
	bucket := flag.String("bucket", "NBTI", "storage bucket")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (self-hosted document store)")
	ipEndpoint := flag.String("ip-endpoint", "", "public IP lookup endpoint override")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	state := localstate.New(localstate.DefaultDir())
	if err := state.EnsureVersion(appVersion); err != nil {
		logger.Warn("state version check failed", zap.Error(err))
	}

	token, _ := loadToken(state.Dir())

	var docs store.DocumentStore
	if *dsn != "" {
		if err := migrate.Up(ctx, *dsn); err != nil {
			fail(fmt.Errorf("migrate: %w", err))
		}
		db, err := postgres.New(ctx, *dsn)
		if err != nil {
			fail(err)
		}
		defer db.Close()
		docs = postgres.NewDocStore(db)
	} else {
		docs = rest.NewDocStore(*api, token, nil)
	}
	blobs := rest.NewBlobClient(*api, token, *bucket, nil)
	idp := rest.NewIdentity(*api, "", nil)

	// Guard first: a banned client gets the notice and nothing else.
	g := guard.New(
		guard.NewDocBanStore(docs),
		ipinfo.New(*ipEndpoint, logger),
		guard.Config{UserAgent: "nbti-cli/" + version},
		logger,
	)
	if g.Startup(ctx) {
		ban := g.ActiveBan()
		fmt.Fprintf(os.Stderr, "access restricted (%s); banned until %s\n",
			ban.Reason, ban.ExpiresAt.Local().Format("2006-01-02 15:04:05"))
		os.Exit(1)
	}

	sess := session.New(idp, state, logger)
	sess.Start(ctx)
	defer sess.Stop()

	svc := service.NewGuildService(docs, blobs, g, logger)

	switch cmd {

	case "version":
		fmt.Printf("nbti %s (%s)\n", version, buildDate)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "email")
		p := fs.String("p", "", "password")
		_ = fs.Parse(flag.Args()[1:])
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}

		user, tokens, err := idp.SignIn(ctx, *u, *p)
		if err != nil {
			fail(err)
		}

		// parse exp from the access token; fall back to provider's value
		exp := tokens.ExpiresAt
		var claims jwt.RegisteredClaims
		_, _ = jwt.ParseWithClaims(tokens.AccessToken, &claims,
			func(*jwt.Token) (any, error) { return nil, nil },
			jwt.WithoutClaimsValidation(),
		)
		if claims.ExpiresAt != nil {
			exp = claims.ExpiresAt.Time
		}
		if err := saveToken(state.Dir(), tokens.AccessToken, exp); err != nil {
			fail(err)
		}
		fmt.Printf("ok %s\n", user.Email)

	case "logout":
		if err := idp.SignOut(ctx); err != nil {
			logger.Warn("sign out", zap.Error(err))
		}
		_ = os.Remove(tokenPath(state.Dir()))
		fmt.Println("ok")

	case "whoami":
		if u := idp.CurrentUser(); u != nil {
			printJSON(u)
			break
		}
		if token == "" {
			fmt.Fprintln(os.Stderr, "not logged in")
			os.Exit(1)
		}
		var claims jwt.RegisteredClaims
		_, _ = jwt.ParseWithClaims(token, &claims,
			func(*jwt.Token) (any, error) { return nil, nil },
			jwt.WithoutClaimsValidation(),
		)
		printJSON(map[string]string{"subject": claims.Subject})

	case "members":
		fs := flag.NewFlagSet("members", flag.ExitOnError)
		all := fs.Bool("all", false, "include pending members")
		_ = fs.Parse(flag.Args()[1:])

		var (
			members []model.Member
			err     error
		)
		if *all {
			members, err = svc.LoadAllMembers(ctx)
		} else {
			members, err = svc.LoadMembers(ctx)
		}
		if err != nil {
			fail(err)
		}
		printJSON(members)

	case "member-add":
		fs := flag.NewFlagSet("member-add", flag.ExitOnError)
		name := fs.String("name", "", "member name")
		email := fs.String("email", "", "email")
		role := fs.String("role", string(model.RoleMember), "role")
		order := fs.Int("order", model.DefaultOrder, "sort order")
		_ = fs.Parse(flag.Args()[1:])
		if *name == "" {
			fmt.Fprintln(os.Stderr, "need -name")
			os.Exit(1)
		}

		id, err := svc.AddMember(ctx, model.Member{
			Name:  *name,
			Email: *email,
			Role:  model.Role(*role),
			Order: *order,
		})
		if err != nil {
			fail(err)
		}
		fmt.Println(id)

	case "member-rm":
		fs := flag.NewFlagSet("member-rm", flag.ExitOnError)
		id := fs.String("id", "", "member id")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		if err := svc.DeleteMember(ctx, *id); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "photos":
		photos, err := svc.LoadPhotos(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(photos)

	case "upload":
		fs := flag.NewFlagSet("upload", flag.ExitOnError)
		file := fs.String("file", "", "image file")
		folder := fs.String("folder", "img", "destination folder")
		title := fs.String("title", "", "photo title")
		_ = fs.Parse(flag.Args()[1:])
		if *file == "" {
			fmt.Fprintln(os.Stderr, "need -file")
			os.Exit(1)
		}

		f, err := os.Open(*file)
		if err != nil {
			fail(err)
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			fail(err)
		}
		contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(*file)))

		res, err := svc.UploadImage(ctx, f, info.Size(), filepath.Base(*file), contentType, *folder)
		if err != nil {
			fail(err)
		}
		if _, err := svc.AddPhoto(ctx, model.Photo{
			Title: *title,
			URL:   res.URL,
			Path:  res.Path,
		}); err != nil {
			fail(err)
		}
		printJSON(res)

	case "notices":
		notices, err := svc.LoadNotices(ctx)
		if err != nil {
			fail(err)
		}
		printJSON(notices)

	case "notice":
		fs := flag.NewFlagSet("notice", flag.ExitOnError)
		id := fs.String("id", "", "notice id")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		n, err := svc.GetNotice(ctx, *id)
		if err != nil {
			fail(err)
		}
		printJSON(n)

	case "notice-add":
		fs := flag.NewFlagSet("notice-add", flag.ExitOnError)
		title := fs.String("title", "", "title")
		content := fs.String("content", "", "body text")
		author := fs.String("author", "", "author")
		_ = fs.Parse(flag.Args()[1:])
		if *title == "" || *content == "" {
			fmt.Fprintln(os.Stderr, "need -title and -content")
			os.Exit(1)
		}
		id, err := svc.AddNotice(ctx, model.Notice{Title: *title, Content: *content, Author: *author})
		if err != nil {
			fail(err)
		}
		fmt.Println(id)

	case "notice-rm":
		fs := flag.NewFlagSet("notice-rm", flag.ExitOnError)
		id := fs.String("id", "", "notice id")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		if err := svc.DeleteNotice(ctx, *id); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "unban":
		fs := flag.NewFlagSet("unban", flag.ExitOnError)
		ip := fs.String("ip", "", "banned client IP")
		_ = fs.Parse(flag.Args()[1:])
		if *ip == "" {
			fmt.Fprintln(os.Stderr, "need -ip")
			os.Exit(1)
		}
		if err := g.Unban(ctx, *ip); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	default:
		usage()
	}
}
