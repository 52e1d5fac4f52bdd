package pubsub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cotinet/cotinode/src/data"
	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/sirupsen/logrus"
)

// ErrNotInitialized is returned by Publish before Init.
var ErrNotInitialized = errors.New("publisher not initialized")

// Publisher hosts a WAMP router on which this node broadcasts its messages.
type Publisher struct {
	sync.Mutex

	realm   string
	ownType data.NodeType

	router     router.Router
	client     *client.Client
	httpServer *http.Server
	listener   net.Listener

	logger *logrus.Entry
}

// NewPublisher ...
func NewPublisher(realm string, logger *logrus.Entry) *Publisher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Publisher{
		realm:  realm,
		logger: logger.WithField("component", "publisher"),
	}
}

// Init starts the router and its websocket server on bindAddr. Messages are
// published as coming from ownType.
func (p *Publisher) Init(bindAddr string, ownType data.NodeType) error {
	p.Lock()
	defer p.Unlock()

	if p.router != nil {
		return fmt.Errorf("publisher already initialized on %s", p.Addr())
	}

	routerConfig := &router.Config{
		RealmConfigs: []*router.RealmConfig{
			&router.RealmConfig{
				URI:           wamp.URI(p.realm),
				AnonymousAuth: true,
			},
		},
	}

	nxr, err := router.NewRouter(routerConfig, p.logger.WithField("ns", "nexus"))
	if err != nil {
		return err
	}

	cli, err := client.ConnectLocal(nxr, client.Config{
		Realm:  p.realm,
		Logger: p.logger.WithField("ns", "nexus-client"),
	})
	if err != nil {
		nxr.Close()
		return err
	}

	listener, err := net.Listen("tcp", bindAddr)
	if err != nil {
		cli.Close()
		nxr.Close()
		return err
	}

	p.ownType = ownType
	p.router = nxr
	p.client = cli
	p.listener = listener
	p.httpServer = &http.Server{
		Handler: router.NewWebsocketServer(nxr),
	}

	go func() {
		if err := p.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			p.logger.WithError(err).Error("Serving websocket")
		}
	}()

	p.logger.WithFields(logrus.Fields{
		"addr":      listener.Addr().String(),
		"node_type": ownType,
	}).Debug("Publisher initialized")

	return nil
}

// Addr returns the address subscribers should connect to.
func (p *Publisher) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Router returns the embedded WAMP router, or nil before Init.
func (p *Publisher) Router() router.Router {
	return p.router
}

// Publish broadcasts msg to the subscribers of every recipient type.
func (p *Publisher) Publish(msg data.Propagatable, recipients ...data.NodeType) error {
	p.Lock()
	cli := p.client
	ownType := p.ownType
	p.Unlock()

	if cli == nil {
		return ErrNotInitialized
	}

	payload, err := data.Marshal(msg)
	if err != nil {
		return err
	}

	args := wamp.List{
		ownType.String(),
		string(msg.Class()),
		string(payload),
	}

	for _, r := range recipients {
		topic := Topic(r, ownType, msg.Class())
		if err := cli.Publish(topic, nil, args, nil); err != nil {
			return fmt.Errorf("publishing %s: %w", topic, err)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"class":      msg.Class(),
		"hash":       msg.GetHash(),
		"recipients": recipients,
	}).Debug("Published")

	return nil
}

// Close stops the websocket server, and the wamp router
func (p *Publisher) Close() error {
	p.Lock()
	defer p.Unlock()

	if p.router == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.httpServer.Shutdown(ctx); err != nil {
		p.logger.WithError(err).Error("Shutting down http server")
	}

	p.client.Close()
	p.router.Close()

	p.router = nil
	p.client = nil
	return nil
}
