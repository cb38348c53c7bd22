// Package runtime moves messages between identities. It persists through the
// message store, checks membership with the permission gateway, runs service
// processors and pushes to live sessions. It holds no lock of its own.
package runtime

import (
	"context"
	"courier/contract"
	"courier/domain"
	"courier/errors"
	"courier/observability"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	PatternUserToUser     = "user_to_user"
	PatternUserToService  = "user_to_service"
	PatternUserToGroup    = "user_to_group"
	PatternServiceToUser  = "service_to_user"
	PatternServiceToGroup = "service_to_group"
	PatternGroupToMembers = "group_to_members"
)

// step is one stage of a routing pattern. A step returning an error stops the pattern.
type step func(r *Router, ctx context.Context, d *dispatch) error

type routeKey struct {
	sender    domain.Kind
	recipient domain.Kind
}

type route struct {
	pattern string
	steps   []step
}

// routes is the routing policy. A pair missing from the table cannot be routed.
var routes = map[routeKey]route{
	{domain.KindUser, domain.KindUser}: {
		pattern: PatternUserToUser,
		steps:   []step{(*Router).appendSender, (*Router).appendRecipient, (*Router).deliverRecipient},
	},
	{domain.KindUser, domain.KindService}: {
		pattern: PatternUserToService,
		steps:   []step{(*Router).appendSender, (*Router).appendRecipient, (*Router).invokeProcessor},
	},
	{domain.KindUser, domain.KindGroup}: {
		pattern: PatternUserToGroup,
		steps:   []step{(*Router).requireMembership, (*Router).appendSender, (*Router).appendRecipient, (*Router).fanOut},
	},
	{domain.KindService, domain.KindUser}: {
		pattern: PatternServiceToUser,
		steps:   []step{(*Router).appendSender, (*Router).appendRecipient, (*Router).deliverRecipient},
	},
	{domain.KindService, domain.KindGroup}: {
		pattern: PatternServiceToGroup,
		steps:   []step{(*Router).appendSender, (*Router).appendRecipient, (*Router).fanOut},
	},
}

// Patterns lists the routable (sender, recipient) pairs.
func Patterns() map[string][2]domain.Kind {
	patterns := make(map[string][2]domain.Kind, len(routes))
	for key, rt := range routes {
		patterns[rt.pattern] = [2]domain.Kind{key.sender, key.recipient}
	}
	return patterns
}

// dispatch carries one send through its steps.
type dispatch struct {
	message domain.Message
	receipt *Receipt
}

// Receipt describes what a send produced.
type Receipt struct {
	Pattern string
	Message domain.Message
	// Reply is the processor answer of a service send, if any.
	Reply *domain.Message
	// Handled is false when a service send found no processor.
	Handled bool
	// Recipients counts the inbound copies written for group members.
	Recipients int
}

// ConnectResult describes what happened when a session attached.
type ConnectResult struct {
	Replaced  bool
	Groups    []string
	Delivered int
}

type Router struct {
	log         *slog.Logger
	store       contract.IMessageStore
	gateway     contract.IPermissionGateway
	processors  contract.IProcessorRegistry
	connections contract.IConnectionRegistry
	metrics     *observability.RouterMetrics
}

func NewRouter(
	log *slog.Logger,
	store contract.IMessageStore,
	gateway contract.IPermissionGateway,
	processors contract.IProcessorRegistry,
	connections contract.IConnectionRegistry,
	metrics *observability.RouterMetrics,
) *Router {
	return &Router{
		log:         log,
		store:       store,
		gateway:     gateway,
		processors:  processors,
		connections: connections,
		metrics:     metrics,
	}
}

// Route sends cmd.Content from cmd.Sender to cmd.Recipient following the
// pattern of their kinds. Argument and membership errors abort before any
// write. Once the first copy is written, every later failure is reported
// with the receipt of what was persisted.
func (r *Router) Route(ctx context.Context, cmd domain.SendCommand) (Receipt, error) {
	if err := cmd.Validate(); err != nil {
		r.metrics.Failed("invalid_argument")
		return Receipt{}, err
	}
	rt, ok := routes[routeKey{cmd.Sender.Kind, cmd.Recipient.Kind}]
	if !ok {
		r.metrics.Failed("invalid_argument")
		return Receipt{}, fmt.Errorf("%w: no route from %s to %s",
			errors.ErrInvalidArgument, cmd.Sender.Kind, cmd.Recipient.Kind)
	}

	message := domain.NewMessage(cmd.Sender, cmd.Recipient, cmd.Content, cmd.Metadata)
	d := &dispatch{
		message: message,
		receipt: &Receipt{Pattern: rt.pattern, Message: message},
	}
	for _, s := range rt.steps {
		if err := s(r, ctx, d); err != nil {
			r.metrics.Failed(failureReason(err))
			return *d.receipt, err
		}
	}
	r.metrics.Routed(rt.pattern)
	r.log.Debug("Message routed", "pattern", rt.pattern, "message_id", message.ID,
		"sender", cmd.Sender.String(), "recipient", cmd.Recipient.String())
	return *d.receipt, nil
}

func (r *Router) requireMembership(_ context.Context, d *dispatch) error {
	sender, group := d.message.Sender(), d.message.Recipient()
	if !r.gateway.IsMember(sender.Name, group.Name) {
		return fmt.Errorf("%w: %s is not a member of group %q", errors.ErrForbidden, sender.Name, group.Name)
	}
	return nil
}

func (r *Router) appendSender(ctx context.Context, d *dispatch) error {
	return r.store.Append(ctx, d.message.Sender(), domain.Outbound, d.message)
}

func (r *Router) appendRecipient(ctx context.Context, d *dispatch) error {
	return r.store.Append(ctx, d.message.Recipient(), domain.Inbound, d.message)
}

func (r *Router) deliverRecipient(ctx context.Context, d *dispatch) error {
	r.deliver(ctx, d.message.Recipient(), d.message)
	return nil
}

// invokeProcessor runs after both copies are written. A reply travels back
// from the service to the sender like any service message.
func (r *Router) invokeProcessor(ctx context.Context, d *dispatch) error {
	service, user := d.message.Recipient(), d.message.Sender()

	start := time.Now()
	outcome, err := r.processors.Invoke(ctx, service.Name, d.message)
	if outcome.Handled {
		r.metrics.ObserveProcessor(service.Name, time.Since(start))
	}
	d.receipt.Handled = outcome.Handled
	if err != nil {
		return err
	}
	if outcome.Reply == nil {
		return nil
	}

	reply := domain.NewMessage(service, user, outcome.Reply.Content, outcome.Reply.Metadata)
	if err := r.store.Append(ctx, service, domain.Outbound, reply); err != nil {
		return err
	}
	if err := r.store.Append(ctx, user, domain.Inbound, reply); err != nil {
		return err
	}
	d.receipt.Reply = &reply
	r.deliver(ctx, user, reply)
	return nil
}

// fanOut copies a group message to every member sampled at this point.
// Members joining later do not get it. A failing member append does not
// stop the others.
func (r *Router) fanOut(ctx context.Context, d *dispatch) error {
	group := d.message.Recipient()
	if err := r.store.Append(ctx, group, domain.Outbound, d.message); err != nil {
		return err
	}

	members := r.gateway.MembersOf(group.Name)
	var errs []error
	for _, name := range members {
		member := domain.User(name)
		if err := r.store.Append(ctx, member, domain.Inbound, d.message); err != nil {
			r.log.Error("Fan-out append failed", "group", group.Name, "member", name,
				"message_id", d.message.ID, "error", err)
			errs = append(errs, err)
			continue
		}
		d.receipt.Recipients++
		r.deliver(ctx, member, d.message)
	}
	r.metrics.Routed(PatternGroupToMembers)
	return errors.Join(errs...)
}

// deliver pushes to identity's live session if there is one. Failures are
// logged and dropped; the message is already stored.
func (r *Router) deliver(ctx context.Context, identity domain.Identity, message domain.Message) {
	session, ok := r.connections.Lookup(identity)
	if !ok {
		return
	}
	r.push(ctx, identity, session, message)
}

func (r *Router) push(ctx context.Context, identity domain.Identity, session contract.Session, message domain.Message) bool {
	if err := session.Deliver(ctx, domain.EventFor(message)); err != nil {
		r.metrics.DeliveryDropped()
		r.log.Warn("Live delivery failed", "identity", identity.String(), "session", session.ID(),
			"message_id", message.ID, "error", err)
		return false
	}
	r.metrics.Delivered()
	return true
}

// OnConnect binds session to identity, resolves the groups it belongs to
// and pushes every unread inbound message, oldest first. A session it
// replaces is closed if it can be.
func (r *Router) OnConnect(ctx context.Context, identity domain.Identity, session contract.Session) (ConnectResult, error) {
	if err := identity.Validate(); err != nil {
		return ConnectResult{}, err
	}
	previous := r.connections.Bind(identity, session)
	if previous == nil {
		r.metrics.SessionOpened()
	} else if closer, ok := previous.(interface{ Close() }); ok {
		closer.Close()
	}

	result := ConnectResult{Replaced: previous != nil, Groups: []string{}}
	if identity.Kind == domain.KindUser {
		result.Groups = r.gateway.GroupsOf(identity.Name)
	}

	unread, err := r.LoadUnread(ctx, identity)
	if err != nil {
		return result, err
	}
	for _, message := range unread {
		if r.push(ctx, identity, session, message) {
			result.Delivered++
		}
	}
	r.log.Info("Session connected", "identity", identity.String(), "session", session.ID(),
		"groups", len(result.Groups), "unread_delivered", result.Delivered)
	return result, nil
}

// OnDisconnect unbinds session unless identity already reconnected elsewhere.
func (r *Router) OnDisconnect(identity domain.Identity, session contract.Session) bool {
	removed := r.connections.Unbind(identity, session)
	if removed {
		r.metrics.SessionClosed()
		r.log.Info("Session disconnected", "identity", identity.String(), "session", session.ID())
	}
	return removed
}

func (r *Router) CreateGroup(user, group string) error {
	return r.gateway.CreateGroup(group, user)
}

func (r *Router) JoinGroup(user, group string) error {
	return r.gateway.AddMember(group, user)
}

func (r *Router) LeaveGroup(user, group string) error {
	return r.gateway.RemoveMember(group, user)
}

func (r *Router) LoadMessages(ctx context.Context, query domain.MessageQuery) ([]domain.Message, error) {
	return r.store.Query(ctx, query)
}

func (r *Router) LoadUnread(ctx context.Context, owner domain.Identity) ([]domain.Message, error) {
	return r.store.Query(ctx, domain.MessageQuery{Owner: owner, Direction: domain.Inbound, UnreadOnly: true})
}

// MarkAsRead flips owner's inbound copy of the message. Marking twice is a no-op.
func (r *Router) MarkAsRead(ctx context.Context, owner domain.Identity, id uuid.UUID) error {
	return r.store.MarkReadFor(ctx, owner, id)
}

func (r *Router) Search(ctx context.Context, cmd domain.SearchCommand) ([]domain.Message, error) {
	return r.store.Search(ctx, cmd)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, errors.ErrProcessorFailure):
		return "processor"
	case errors.Is(err, errors.ErrForbidden):
		return "forbidden"
	case errors.Is(err, errors.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, errors.ErrStorageFailure):
		return "storage"
	default:
		return "internal"
	}
}
