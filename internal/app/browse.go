package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/clipverse/backend/internal/apiclient"
	"github.com/clipverse/backend/internal/config"
	"github.com/clipverse/backend/internal/engagement"
	"github.com/clipverse/backend/internal/feed"
	"github.com/clipverse/backend/internal/logging"
	"github.com/clipverse/backend/internal/models"
	"github.com/clipverse/backend/internal/notify"
	"github.com/clipverse/backend/internal/profiles"
	"github.com/clipverse/backend/internal/session"
)

const browseHelp = `commands:
  explore | trending | subscriptions   switch feed
  more                                 load the next page
  reload                               reload the first page
  like <n>                             like or unlike item n
  sub <n>                              subscribe to or unsubscribe from the creator of item n
  view <n>                             count a view of item n
  help | quit`

func runBrowse(ctx context.Context, in io.Reader, out io.Writer) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx = logging.WithLogger(ctx, logger)

	b, err := newBrowser(ctx, cfg, out)
	if err != nil {
		return err
	}
	defer b.close(ctx)
	return b.run(ctx, in)
}

// browser is the terminal client: it pages the feeds through the API and
// toggles likes and subscriptions optimistically.
type browser struct {
	out      io.Writer
	client   *apiclient.Client
	sess     *session.Context
	notifier notify.Notifier
	feeds    *feed.Feeds
	current  feed.Variant

	unsubscribe func()
	likes       map[string]*engagement.LikeToggler
	subs        map[string]*engagement.SubscriptionToggler
	subscribed  map[string]bool
}

func newBrowser(ctx context.Context, cfg config.Config, out io.Writer) (*browser, error) {
	client, err := apiclient.New(cfg.Client.BaseURL, cfg.Client.RequestTimeout)
	if err != nil {
		return nil, err
	}
	sess := session.New(client)
	client.UseTokens(sess)

	b := &browser{
		out:        out,
		client:     client,
		sess:       sess,
		notifier:   notify.NewWriter(out),
		current:    feed.Explore,
		likes:      make(map[string]*engagement.LikeToggler),
		subs:       make(map[string]*engagement.SubscriptionToggler),
		subscribed: make(map[string]bool),
	}
	b.unsubscribe = sess.Subscribe(func(ev session.Event) {
		switch ev.Kind {
		case session.SignedIn:
			fmt.Fprintf(out, "signed in as %s\n", ev.Session.UserID)
		case session.SignedOut:
			fmt.Fprintln(out, "signed out")
		}
	})

	if cfg.Client.Email != "" {
		if err := sess.SignIn(ctx, cfg.Client.Email, cfg.Client.Password); err != nil {
			b.notifier.Notify(ctx, notify.FromError("Sign in failed", err))
		}
	}
	if viewerID := sess.ViewerID(); viewerID != "" {
		creators, err := client.SubscribedCreators(ctx, viewerID)
		if err != nil {
			logging.FromContext(ctx).Warn("load subscriptions", "error", err)
		}
		for _, id := range creators {
			b.subscribed[id] = true
		}
	}

	lookup := profiles.NewCachingLookup(feed.PerItemLookup{Lookup: client.Profile, Concurrency: 4}, cfg.ProfileCacheTTL)
	b.feeds = feed.NewFeeds(feed.Options{
		Source:        client,
		Subscriptions: client,
		Profiles:      lookup,
		Notifier:      b.notifier,
		ViewerID:      sess.ViewerID(),
		Timeout:       cfg.Client.RequestTimeout,
	})
	return b, nil
}

func (b *browser) run(ctx context.Context, in io.Reader) error {
	// Failures are already reported per variant through the notifier.
	b.feeds.LoadAll(ctx)
	b.render()
	fmt.Fprintln(b.out, browseHelp)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(b.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if quit := b.exec(ctx, scanner.Text()); quit {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// exec runs one command line and reports whether the loop should stop.
func (b *browser) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch cmd := strings.ToLower(fields[0]); cmd {
	case "quit", "q", "exit":
		return true
	case "help", "?":
		fmt.Fprintln(b.out, browseHelp)
	case "explore", "trending", "subscriptions":
		b.current = feed.Variant(cmd)
		p := b.feeds.Get(b.current)
		if p.Snapshot().Page == 0 {
			p.Load(ctx)
		}
		b.render()
	case "more", "m":
		if applied, _ := b.feeds.Get(b.current).LoadMore(ctx); !applied {
			fmt.Fprintln(b.out, "nothing more to load")
		}
		b.render()
	case "reload", "r":
		b.feeds.Get(b.current).Load(ctx)
		b.render()
	case "like", "sub", "view":
		item, ok := b.item(fields)
		if !ok {
			return false
		}
		b.act(ctx, cmd, item)
	default:
		fmt.Fprintf(b.out, "unknown command %q, try help\n", cmd)
	}
	return false
}

func (b *browser) item(fields []string) (models.VideoSummary, bool) {
	items := b.feeds.Get(b.current).Snapshot().Items
	if len(fields) < 2 {
		fmt.Fprintf(b.out, "usage: %s <n>\n", fields[0])
		return models.VideoSummary{}, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil || n < 1 || n > len(items) {
		fmt.Fprintf(b.out, "pick an item between 1 and %d\n", len(items))
		return models.VideoSummary{}, false
	}
	return items[n-1], true
}

func (b *browser) act(ctx context.Context, cmd string, item models.VideoSummary) {
	viewerID := b.sess.ViewerID()

	switch cmd {
	case "like":
		t, ok := b.likes[item.ID]
		if !ok {
			t = engagement.NewLikeToggler(item.ID, engagement.LikeState{Count: item.LikeCount}, b.client)
			b.likes[item.ID] = t
		}
		if _, err := t.Toggle(ctx, viewerID); err != nil {
			b.notifier.Notify(ctx, notify.FromError("Could not update like", err))
			return
		}
		st := t.State()
		fmt.Fprintf(b.out, "%s: liked=%t likes=%d\n", item.Title, st.Liked, st.Count)
	case "sub":
		creator := item.Creator
		t, ok := b.subs[creator.ID]
		if !ok {
			initial := engagement.SubscriptionState{Subscribed: b.subscribed[creator.ID], Subscribers: creator.SubscriberCount}
			t = engagement.NewSubscriptionToggler(creator.ID, initial, b.client)
			b.subs[creator.ID] = t
		}
		if _, err := t.Toggle(ctx, viewerID); err != nil {
			b.notifier.Notify(ctx, notify.FromError("Could not update subscription", err))
			return
		}
		st := t.State()
		b.subscribed[creator.ID] = st.Subscribed
		fmt.Fprintf(b.out, "%s: subscribed=%t subscribers=%d\n", creator.DisplayName, st.Subscribed, st.Subscribers)
	case "view":
		if err := b.client.RecordView(ctx, item.ID); err != nil {
			b.notifier.Notify(ctx, notify.FromError("Could not record view", err))
			return
		}
		fmt.Fprintf(b.out, "watching %s\n", item.Title)
	}
}

func (b *browser) render() {
	st := b.feeds.Get(b.current).Snapshot()
	more := ""
	if st.HasMore {
		more = ", more available"
	}
	fmt.Fprintf(b.out, "== %s (page %d, %d videos%s) ==\n", st.Variant, st.Page, len(st.Items), more)
	if len(st.Items) == 0 {
		fmt.Fprintln(b.out, "  no videos yet")
		return
	}
	for i, item := range st.Items {
		fmt.Fprintf(b.out, "%3d. %s by %s - %d views, %d likes\n",
			i+1, item.Title, item.Creator.DisplayName, item.ViewCount, item.LikeCount)
	}
}

func (b *browser) close(ctx context.Context) {
	b.feeds.Close()
	if err := b.sess.SignOut(context.WithoutCancel(ctx)); err != nil {
		logging.FromContext(ctx).Warn("sign out", "error", err)
	}
	b.unsubscribe()
}
