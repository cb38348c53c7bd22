//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"courier/domain"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// IMessageStore persists per-identity, per-direction message logs.
type IMessageStore interface {
	// Append is idempotent for a given message ID.
	Append(ctx context.Context, owner domain.Identity, direction domain.Direction, message domain.Message) error
	// Query returns messages ordered by timestamp ascending. Unknown identities yield an empty slice.
	Query(ctx context.Context, query domain.MessageQuery) ([]domain.Message, error)
	// MarkRead flips the read flag of every stored copy of the message.
	MarkRead(ctx context.Context, id uuid.UUID) error
	// MarkReadFor flips only owner's inbound copy.
	MarkReadFor(ctx context.Context, owner domain.Identity, id uuid.UUID) error
	HasUnread(ctx context.Context, owner domain.Identity) (bool, error)
	Search(ctx context.Context, cmd domain.SearchCommand) ([]domain.Message, error)
}

// IPermissionGateway owns group membership and resource permissions.
type IPermissionGateway interface {
	IsMember(user, group string) bool
	MembersOf(group string) []string
	GroupsOf(user string) []string
	AddMember(group, user string) error
	RemoveMember(group, user string) error
	CreateGroup(group, creator string) error
	DeleteGroup(group string) error
	Authorize(user, resource string, permission domain.Permission) bool
}

// IGroupRepository persists what the permission gateway keeps in memory.
type IGroupRepository interface {
	SaveGroup(group domain.GroupRecord) error
	DeleteGroup(name string) error
	LoadGroups() ([]domain.GroupRecord, error)
	SaveGrant(grant domain.Grant) error
	DeleteGrant(user, resource string) error
	LoadGrants() ([]domain.Grant, error)
}

// Processor handles messages addressed to a service.
type Processor interface {
	Process(ctx context.Context, message domain.Message) (*domain.Reply, error)
}

type IProcessorRegistry interface {
	Register(service string, processor Processor)
	Unregister(service string) bool
	Invoke(ctx context.Context, service string, message domain.Message) (domain.ProcessorOutcome, error)
	List() []string
}

// Session is a live transport connection able to receive pushed events.
type Session interface {
	ID() string
	Deliver(ctx context.Context, e domain.Event) error
}

type IConnectionRegistry interface {
	Bind(identity domain.Identity, session Session) Session
	Unbind(identity domain.Identity, session Session) bool
	Lookup(identity domain.Identity) (Session, bool)
}

// ICredentialRepository stores secret hashes of identities able to log in.
type ICredentialRepository interface {
	// Create fails with ErrAlreadyExists when the identity already has a credential.
	Create(identity domain.Identity, secretHash string) error
	SecretHash(identity domain.Identity) (string, error)
}
