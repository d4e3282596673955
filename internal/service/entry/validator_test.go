package entry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/exhibitions/internal/domain"
	"github.com/Domenick1991/exhibitions/internal/repository/memstore"
	"github.com/Domenick1991/exhibitions/internal/service/exhibitions"
	"github.com/Domenick1991/exhibitions/internal/service/registration"
	"github.com/Domenick1991/exhibitions/internal/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	staff   = domain.Actor{ID: 1, Admin: true}
	visitor = domain.Actor{ID: 7}
	endsAt  = time.Date(2030, 6, 30, 18, 0, 0, 0, time.UTC)
)

type fixture struct {
	store     *memstore.Store
	codec     *ticket.Codec
	registrar *registration.RegistrationService
	validator *Validator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	store.PutExhibition(domain.Exhibition{ID: 1, Title: "Maps", Capacity: 50, EndsAt: endsAt, Active: true, Published: true})
	store.PutRegistrant(domain.Registrant{ID: 1, Email: "staff@example.com", Name: "Staff", IsAdmin: true})
	store.PutRegistrant(domain.Registrant{ID: 7, Email: "ann@example.com", Name: "Ann"})

	codec := ticket.NewCodec([]byte("entry-test-key"))
	events := exhibitions.NewExhibitionService(store.Exhibitions(), store, nil, zap.NewNop())
	registrar := registration.NewRegistrationService(store.Registrations(), store, events, store.Registrants(), codec, nil, zap.NewNop())
	validator := NewValidator(codec, store.Registrations(), events, store.Registrants(), zap.NewNop())
	return &fixture{store: store, codec: codec, registrar: registrar, validator: validator}
}

func (f *fixture) issue(t *testing.T) *domain.Registration {
	t.Helper()
	reg, err := f.registrar.Register(context.Background(), visitor, registration.RegisterInput{EventID: 1, Quantity: 2})
	require.NoError(t, err)
	return reg
}

func TestValidator_Accepted(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)

	res, err := f.validator.Validate(context.Background(), staff, reg.Token)
	require.NoError(t, err)

	assert.Equal(t, Accepted, res.Outcome)
	assert.Equal(t, reg.ID, res.RegistrationID)
	assert.Equal(t, int64(7), res.RegistrantID)
	assert.Equal(t, "Ann", res.RegistrantName)
	assert.Equal(t, 2, res.Quantity)
	require.NotNil(t, res.ValidatedAt)

	stored, err := f.store.Registrations().GetByID(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.True(t, stored.Validated())
}

func TestValidator_AlreadyUsed(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)
	ctx := context.Background()

	first, err := f.validator.Validate(ctx, staff, reg.Token)
	require.NoError(t, err)
	require.Equal(t, Accepted, first.Outcome)

	second, err := f.validator.Validate(ctx, staff, reg.Token)
	require.NoError(t, err)
	assert.Equal(t, AlreadyUsed, second.Outcome)
	assert.Equal(t, first.ValidatedAt, second.ValidatedAt)
}

func TestValidator_ConcurrentScansAcceptOnce(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)

	const scanners = 16
	outcomes := make([]Outcome, scanners)
	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.validator.Validate(context.Background(), staff, reg.Token)
			assert.NoError(t, err)
			outcomes[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	accepted, used := 0, 0
	for _, o := range outcomes {
		switch o {
		case Accepted:
			accepted++
		case AlreadyUsed:
			used++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, scanners-1, used)
}

func TestValidator_InvalidToken(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)
	ctx := context.Background()

	for _, token := range []string{"", "not-a-token", reg.Token + "x"} {
		res, err := f.validator.Validate(ctx, staff, token)
		require.NoError(t, err)
		assert.Equal(t, InvalidToken, res.Outcome, token)
	}

	foreign, err := ticket.NewCodec([]byte("other-key")).Encode(ticket.NewPayload(reg.ID, 7, 1, 2, time.Now()))
	require.NoError(t, err)
	res, err := f.validator.Validate(ctx, staff, foreign)
	require.NoError(t, err)
	assert.Equal(t, InvalidToken, res.Outcome)
}

func TestValidator_TamperedTokenNeverAccepted(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)
	ctx := context.Background()

	for i := 0; i < len(reg.Token); i++ {
		b := []byte(reg.Token)
		b[i] ^= 0x01
		res, err := f.validator.Validate(ctx, staff, string(b))
		require.NoError(t, err)
		require.NotEqual(t, Accepted, res.Outcome, "byte %d", i)
	}

	res, err := f.validator.Validate(ctx, staff, reg.Token)
	require.NoError(t, err)
	assert.Equal(t, Accepted, res.Outcome)
}

func TestValidator_ReissuedTokenForSameRegistration(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)

	forged, err := f.codec.Encode(ticket.NewPayload(reg.ID, 7, 1, 2, time.Now().Add(time.Hour)))
	require.NoError(t, err)

	res, err := f.validator.Validate(context.Background(), staff, forged)
	require.NoError(t, err)
	assert.Equal(t, InvalidToken, res.Outcome)
}

func TestValidator_UnknownTicket(t *testing.T) {
	f := newFixture(t)
	token, err := f.codec.Encode(ticket.NewPayload("00000000-0000-0000-0000-000000000000", 7, 1, 1, time.Now()))
	require.NoError(t, err)

	res, err := f.validator.Validate(context.Background(), staff, token)
	require.NoError(t, err)
	assert.Equal(t, UnknownTicket, res.Outcome)
}

func TestValidator_Revoked(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)
	ctx := context.Background()

	_, err := f.registrar.Cancel(ctx, visitor, reg.ID)
	require.NoError(t, err)

	res, err := f.validator.Validate(ctx, staff, reg.Token)
	require.NoError(t, err)
	assert.Equal(t, Revoked, res.Outcome)
}

func TestValidator_EventClosed(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)
	f.validator.now = func() time.Time { return endsAt.Add(time.Minute) }

	res, err := f.validator.Validate(context.Background(), staff, reg.Token)
	require.NoError(t, err)
	assert.Equal(t, EventClosed, res.Outcome)

	stored, err := f.store.Registrations().GetByID(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.False(t, stored.Validated())
}

func TestValidator_EventDeactivated(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)
	f.store.PutExhibition(domain.Exhibition{ID: 1, Title: "Maps", Capacity: 50, EndsAt: endsAt, Active: false, Published: true})

	res, err := f.validator.Validate(context.Background(), staff, reg.Token)
	require.NoError(t, err)
	assert.Equal(t, EventClosed, res.Outcome)
}

func TestValidator_RequiresStaff(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)

	_, err := f.validator.Validate(context.Background(), visitor, reg.Token)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value any) error {
	return m.Called(ctx, topic, key, value).Error(0)
}

func TestValidator_PublishesValidation(t *testing.T) {
	f := newFixture(t)
	reg := f.issue(t)
	producer := &MockProducer{}
	f.validator.WithProducer(producer, "registrations")

	producer.On("Publish", mock.Anything, "registrations", reg.ID, mock.Anything).Return(nil).Once()

	res, err := f.validator.Validate(context.Background(), staff, reg.Token)
	require.NoError(t, err)
	assert.Equal(t, Accepted, res.Outcome)
	producer.AssertExpectations(t)
}
