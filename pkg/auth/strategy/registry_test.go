package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rhuss/gatekeeper/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// basicStrategy is a conforming strategy.
type basicStrategy struct {
	Base
	subject string
}

func (s *basicStrategy) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return s.Success(&auth.Identity{Subject: s.subject})
}

// memberOnly embeds Base but never declares Authenticate.
type memberOnly struct {
	Base
}

// outsider declares Authenticate without embedding Base.
type outsider struct{}

func (*outsider) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{Decision: auth.Yes}
}

// valueReceiver declares Authenticate on the value receiver.
type valueReceiver struct {
	Base
}

func (valueReceiver) Authenticate(_ context.Context, _ *http.Request) auth.AuthResult {
	return auth.AuthResult{Decision: auth.Abstain}
}

func TestAdd_BasicStrategy(t *testing.T) {
	reg := New()
	basic := &basicStrategy{subject: "alice"}

	got, err := reg.Add("basic", basic)
	require.NoError(t, err)
	assert.Same(t, basic, got)

	found, ok := reg.Lookup("basic")
	require.True(t, ok)
	assert.Same(t, basic, found)
}

func TestAdd_ValueReceiver(t *testing.T) {
	reg := New()

	_, err := reg.Add("value", valueReceiver{})
	require.NoError(t, err)

	_, ok := reg.Lookup("value")
	assert.True(t, ok)
}

func TestAdd_MissingAuthenticate(t *testing.T) {
	candidates := map[string]any{
		"empty struct":  struct{}{},
		"base only":     &memberOnly{},
		"nil":           nil,
		"plain string":  "authenticate",
		"pointer value": &struct{ Base }{},
		"typed nil":     (*basicStrategy)(nil),
	}

	for name, candidate := range candidates {
		t.Run(name, func(t *testing.T) {
			reg := New()
			before := reg.Strategies()

			_, err := reg.Add("broken", candidate)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingCapability)

			var mce *MissingCapabilityError
			require.ErrorAs(t, err, &mce)
			assert.Equal(t, Label("broken"), mce.Label)
			assert.Contains(t, err.Error(), "broken")
			assert.Contains(t, err.Error(), "authenticate is not declared")

			assert.Equal(t, before, reg.Strategies(), "registry must be unchanged")
		})
	}
}

func TestAdd_NotAStrategy(t *testing.T) {
	reg := New()
	_, err := reg.Add("keep", &basicStrategy{subject: "keep"})
	require.NoError(t, err)
	before := reg.Strategies()

	_, err = reg.Add("outsider", &outsider{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContractViolation)
	assert.NotErrorIs(t, err, ErrMissingCapability)

	var cve *ContractViolationError
	require.ErrorAs(t, err, &cve)
	assert.Equal(t, Label("outsider"), cve.Label)
	assert.Equal(t, `"outsider" is not a Strategy`, err.Error())

	assert.Equal(t, before, reg.Strategies())
	_, ok := reg.Lookup("outsider")
	assert.False(t, ok)
}

func TestAdd_CapabilityCheckedBeforeContract(t *testing.T) {
	// struct{}{} fails both checks; the capability error wins.
	_, err := New().Add("both", struct{}{})
	assert.ErrorIs(t, err, ErrMissingCapability)
}

func TestAdd_EmptyLabel(t *testing.T) {
	reg := New()

	_, err := reg.Add("", &basicStrategy{})
	assert.ErrorIs(t, err, ErrEmptyLabel)

	_, err = reg.AddFunc("", func(context.Context, *http.Request) auth.AuthResult { return auth.AuthResult{} })
	assert.ErrorIs(t, err, ErrEmptyLabel)

	_, err = reg.Register("", &basicStrategy{})
	assert.ErrorIs(t, err, ErrEmptyLabel)

	assert.Equal(t, 0, reg.Len())
}

func TestAdd_Overwrite(t *testing.T) {
	reg := New()
	a := &basicStrategy{subject: "a"}
	b := &basicStrategy{subject: "b"}

	_, err := reg.Add("x", a)
	require.NoError(t, err)
	_, err = reg.Add("x", b)
	require.NoError(t, err)

	got, ok := reg.Lookup("x")
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Equal(t, 1, reg.Len())
}

func TestAdd_FailureDoesNotBlockLaterRegistrations(t *testing.T) {
	reg := New()

	_, err := reg.Add("x", struct{}{})
	require.Error(t, err)

	_, err = reg.Add("x", &basicStrategy{subject: "x"})
	require.NoError(t, err)

	_, ok := reg.Lookup("x")
	assert.True(t, ok)
}

func TestAddFunc_InlineStrategy(t *testing.T) {
	reg := New()
	var called bool

	s, err := reg.AddFunc("foo", func(_ context.Context, _ *http.Request) auth.AuthResult {
		called = true
		return auth.AuthResult{Decision: auth.Yes, Identity: &auth.Identity{Subject: "foo"}}
	})
	require.NoError(t, err)

	_, isFunc := s.(*Func)
	assert.True(t, isFunc)

	got, ok := reg.Lookup("foo")
	require.True(t, ok)
	assert.Same(t, s, got)

	r := httptest.NewRequest("GET", "/", nil)
	assert.True(t, got.Valid(r), "inline strategy inherits Base.Valid")

	result := got.Authenticate(context.Background(), r)
	assert.True(t, called)
	assert.Equal(t, auth.Yes, result.Decision)
	assert.Equal(t, "foo", result.Identity.Subject)
}

func TestAddFunc_WithValid(t *testing.T) {
	reg := New()

	s, err := reg.AddFunc("header",
		func(_ context.Context, r *http.Request) auth.AuthResult {
			return auth.AuthResult{Decision: auth.Yes, Identity: &auth.Identity{Subject: r.Header.Get("X-User")}}
		},
		WithValid(func(r *http.Request) bool { return r.Header.Get("X-User") != "" }),
	)
	require.NoError(t, err)

	without := httptest.NewRequest("GET", "/", nil)
	assert.False(t, s.Valid(without))

	with := httptest.NewRequest("GET", "/", nil)
	with.Header.Set("X-User", "carol")
	assert.True(t, s.Valid(with))
}

func TestAddFunc_NilBody(t *testing.T) {
	reg := New()

	_, err := reg.AddFunc("empty", nil)
	assert.ErrorIs(t, err, ErrMissingCapability)
	assert.Equal(t, 0, reg.Len())
}

func TestRegister_Typed(t *testing.T) {
	reg := New()
	s := &basicStrategy{subject: "typed"}

	got, err := reg.Register("typed", s)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = reg.Register("nil", nil)
	assert.ErrorIs(t, err, ErrMissingCapability)

	_, err = reg.Register("typed-nil", (*basicStrategy)(nil))
	assert.ErrorIs(t, err, ErrMissingCapability)
	_, ok := reg.Lookup("typed-nil")
	assert.False(t, ok)
}

func TestLookup_Unknown(t *testing.T) {
	reg := New()

	s, ok := reg.Lookup("never_registered")
	assert.False(t, ok)
	assert.Nil(t, s)
	assert.Equal(t, 0, reg.Len(), "lookup must not create entries")
}

func TestClear(t *testing.T) {
	reg := New()
	labels := []Label{"a", "b", "c"}
	for _, l := range labels {
		_, err := reg.Add(l, &basicStrategy{subject: string(l)})
		require.NoError(t, err)
	}

	reg.Clear()

	for _, l := range labels {
		_, ok := reg.Lookup(l)
		assert.False(t, ok, "label %q should be gone after Clear", l)
	}
	assert.Empty(t, reg.Strategies())
	assert.Equal(t, 0, reg.Len())

	// The registry is usable after Clear.
	_, err := reg.Add("a", &basicStrategy{subject: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, reg.Len())
}

func TestStrategies_LazyAndCopied(t *testing.T) {
	var reg Registry

	all := reg.Strategies()
	require.NotNil(t, all, "first access creates an empty mapping")
	assert.Empty(t, all)

	_, err := reg.Add("basic", &basicStrategy{})
	require.NoError(t, err)

	all = reg.Strategies()
	all["injected"] = &basicStrategy{}
	delete(all, "basic")

	_, ok := reg.Lookup("injected")
	assert.False(t, ok, "mutating the returned map must not affect the registry")
	_, ok = reg.Lookup("basic")
	assert.True(t, ok)
}

func TestLabels_Sorted(t *testing.T) {
	reg := New()
	assert.Empty(t, reg.Labels())

	for _, l := range []Label{"jwt", "apikey", "basic"} {
		_, err := reg.Add(l, &basicStrategy{})
		require.NoError(t, err)
	}

	assert.Equal(t, []Label{"apikey", "basic", "jwt"}, reg.Labels())
}

func TestRegistrationMetrics(t *testing.T) {
	added := testutil.ToFloat64(registrations.WithLabelValues("added"))
	replaced := testutil.ToFloat64(registrations.WithLabelValues("replaced"))
	rejected := testutil.ToFloat64(registrations.WithLabelValues("rejected"))

	reg := New()
	_, _ = reg.Add("m", &basicStrategy{})
	_, _ = reg.Add("m", &basicStrategy{})
	_, _ = reg.Add("bad", &outsider{})

	assert.Equal(t, added+1, testutil.ToFloat64(registrations.WithLabelValues("added")))
	assert.Equal(t, replaced+1, testutil.ToFloat64(registrations.WithLabelValues("replaced")))
	assert.Equal(t, rejected+1, testutil.ToFloat64(registrations.WithLabelValues("rejected")))
}

func TestRegistry_Concurrent(t *testing.T) {
	reg := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				label := Label(fmt.Sprintf("s-%d-%d", i, j%5))
				if _, err := reg.Add(label, &basicStrategy{}); err != nil {
					t.Errorf("Add(%q): %v", label, err)
					return
				}
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Lookup(Label(fmt.Sprintf("s-%d-%d", i, j%5)))
				reg.Labels()
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				reg.Clear()
				reg.Strategies()
			}
		}()
	}
	wg.Wait()
}

func TestErrorsAreDistinct(t *testing.T) {
	mce := &MissingCapabilityError{Label: "a"}
	cve := &ContractViolationError{Label: "a"}

	assert.False(t, errors.Is(mce, ErrContractViolation))
	assert.False(t, errors.Is(cve, ErrMissingCapability))
	assert.True(t, errors.Is(fmt.Errorf("wrapped: %w", mce), ErrMissingCapability))
}
