package topicnote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/topicnote/topicnote/pkg/client"
	"github.com/topicnote/topicnote/pkg/legacy"
	"github.com/topicnote/topicnote/pkg/models"
	"github.com/topicnote/topicnote/pkg/notify"
	"github.com/topicnote/topicnote/pkg/reachability"
	"github.com/topicnote/topicnote/pkg/store/local"
	"github.com/topicnote/topicnote/pkg/syncer"
	"github.com/topicnote/topicnote/pkg/topics"
)

// device is the client side of topicnote: the local database, the sync engine
// in front of the server and the topic store on top of both.
type device struct {
	local   *local.Store
	remote  *client.Client
	watcher *notify.Watcher
	engine  *syncer.Engine
	topics  *topics.Store
}

// openDevice assembles the client components. With connect false, or in
// offline mode, nothing ever reaches the network. With watch set reachability
// follows the server's change feed instead of being assumed.
func (a *App) openDevice(ctx context.Context, connect, watch bool) (*device, error) {
	lst, err := local.New(a.config.LocalDBPath, *a.log)
	if err != nil {
		return nil, err
	}
	d := &device{local: lst, remote: client.NewClient(a.config.RemoteURL)}

	connect = connect && !a.config.Offline
	if connect {
		if err := a.authenticate(ctx, d.remote); err != nil {
			_ = lst.Close()
			return nil, err
		}
	}

	var net reachability.Notifier
	switch {
	case !connect:
		net = reachability.NewStatic(false)
	case watch:
		d.watcher, err = notify.NewWatcher(a.config.RemoteURL, d.remote.AuthToken,
			notify.WithWatcherLogger(*a.log),
			notify.WithOnChange(func(e notify.Event) {
				a.log.Debug().Strs("ids", e.IDs).Bool("deleted", e.Deleted).Msg("server reported changes")
				d.engine.SchedulePull()
			}))
		if err != nil {
			_ = lst.Close()
			return nil, err
		}
		net = d.watcher
	default:
		net = reachability.NewStatic(true)
	}

	opts := []syncer.Option{syncer.WithLogger(*a.log)}
	if a.config.LegacyPath != "" {
		opts = append(opts, syncer.WithLegacy(legacy.NewFileStore(a.config.LegacyPath)))
	}
	d.engine = syncer.New(lst, d.remote, net, opts...)
	d.topics = topics.New(lst,
		topics.WithSyncer(d.engine),
		topics.WithPreferences(lst),
		topics.WithLogger(*a.log))
	d.engine.AfterPull(func(ctx context.Context) {
		if err := d.topics.Reload(ctx); err != nil {
			a.log.Warn().Err(err).Msg("failed to reload topics after pull")
		}
	})

	if d.watcher != nil {
		d.watcher.Start(ctx)
	}
	return d, nil
}

// authenticate sets the client's session from the configured token, or signs
// in with the configured credentials. Without either the client stays signed
// out and remote calls fail with store.ErrNotAuthenticated.
func (a *App) authenticate(ctx context.Context, c *client.Client) error {
	switch {
	case a.config.Token != "":
		c.SetAuthToken(a.config.Token)
	case a.config.Email != "" && a.config.Password != "":
		resp, err := c.SignIn(ctx, a.config.Email, a.config.Password)
		if err != nil {
			return fmt.Errorf("failed to sign in as %s: %w", a.config.Email, err)
		}
		a.log.Info().Str("user", resp.User.ID).Msg("signed in")
	default:
		a.log.Warn().Msg("no token or credentials configured, remote calls will fail")
	}
	return nil
}

func (d *device) Close() error {
	if d.watcher != nil {
		_ = d.watcher.Close()
	}
	d.engine.Close()
	return d.local.Close()
}

// Sync imports legacy storage, then runs the requested pass. It returns an
// error when the pass recorded one.
func (a *App) Sync(ctx context.Context, cmd *SyncCommand) error {
	if a.config.Offline {
		return errors.New("sync is not available in offline mode")
	}
	d, err := a.openDevice(ctx, true, cmd.Watch)
	if err != nil {
		return err
	}
	defer d.Close()

	if n := d.engine.MigrateLegacyStorage(ctx); n > 0 {
		fmt.Fprintf(a.out, "imported %d topics from %s\n", n, a.config.LegacyPath)
	}

	if cmd.Watch {
		return a.watch(ctx, d)
	}

	switch cmd.Direction {
	case "push":
		d.engine.PushToRemote(ctx)
	case "pull":
		d.engine.PullFromRemote(ctx)
	default:
		d.engine.FullSync(ctx)
	}

	status := d.engine.Status()
	if status.Error != "" {
		return fmt.Errorf("%s sync failed: %s", cmd.Direction, status.Error)
	}
	count, err := d.local.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s sync finished: %d topics stored locally\n", cmd.Direction, count)
	return nil
}

// watch runs until ctx is done, with a full pass every sync interval on top of
// the pulls triggered by the change feed.
func (a *App) watch(ctx context.Context, d *device) error {
	unsubscribe := d.engine.Subscribe(func(s syncer.Status) {
		ev := a.log.Info().Bool("online", s.IsOnline).Bool("syncing", s.IsSyncing)
		if s.Error != "" {
			ev = ev.Str("error", s.Error)
		}
		ev.Msg("sync status")
	})
	defer unsubscribe()

	a.log.Info().Dur("interval", a.config.SyncInterval).Msg("watching for changes")
	d.engine.Run(ctx, a.config.SyncInterval)
	return nil
}

// Tree prints the local topic tree. With a tag filter it prints the matching
// topics flat; with Tags it prints the tag index.
func (a *App) Tree(ctx context.Context, cmd *TreeCommand) error {
	d, err := a.openDevice(ctx, false, false)
	if err != nil {
		return err
	}
	defer d.Close()

	switch {
	case cmd.Tags:
		counts, err := d.local.TagCounts(ctx)
		if err != nil {
			return err
		}
		for _, c := range counts {
			fmt.Fprintf(a.out, "#%s  %d\n", c.Tag, c.Count)
		}
		return nil
	case cmd.Tag != "":
		tagged, err := d.local.ListByTag(ctx, cmd.Tag)
		if err != nil {
			return err
		}
		for _, t := range tagged {
			fmt.Fprintf(a.out, "%s%s  [%s]\n", t.Title, tagSuffix(t.Tags), t.ID)
		}
		return nil
	}

	d.topics.Initialize(ctx)

	for _, root := range d.topics.GetTopicTree() {
		root.Walk(func(depth int, n *models.TopicTree) {
			fmt.Fprintf(a.out, "%s- %s%s  [%s]\n", strings.Repeat("  ", depth), n.Title, tagSuffix(n.Tags), n.ID)
		})
	}
	return nil
}

// Add creates one topic and prints its id. The upload to the server, when
// connected, finishes before Add returns.
func (a *App) Add(ctx context.Context, cmd *AddCommand) error {
	d, err := a.openDevice(ctx, true, false)
	if err != nil {
		return err
	}
	defer d.Close()
	d.topics.Initialize(ctx)

	var parentID *string
	if cmd.ParentID != "" {
		if _, ok := d.topics.GetTopicByID(cmd.ParentID); !ok {
			return fmt.Errorf("parent topic %s: %w", cmd.ParentID, topics.ErrParentNotFound)
		}
		parentID = &cmd.ParentID
	}

	var topic *models.Topic
	if cmd.Template != "" {
		topic, err = d.topics.CreateTopicFromTemplate(ctx, cmd.Template, parentID)
		if err == nil && topic == nil {
			return fmt.Errorf("unknown template %q", cmd.Template)
		}
	} else {
		topic, err = d.topics.CreateTopic(ctx, models.TopicInput{
			Title:    cmd.Title,
			Content:  cmd.Content,
			Tags:     cmd.Tags,
			ParentID: parentID,
		})
	}
	if err != nil {
		return err
	}

	d.engine.Wait()
	if status := d.engine.Status(); status.Error != "" {
		a.log.Warn().Str("error", status.Error).Msg("topic saved locally but not on the server")
	}
	fmt.Fprintln(a.out, topic.ID)
	return nil
}

func tagSuffix(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " #" + strings.Join(tags, " #")
}
