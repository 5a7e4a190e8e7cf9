package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockVerifier is a mock implementation of the ProofVerifier interface
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyProof(ctx context.Context, locator, expectedHandle, expectedCode string) (VerifyResult, error) {
	args := m.Called(ctx, locator, expectedHandle, expectedCode)
	return args.Get(0).(VerifyResult), args.Error(1)
}

// fakePosts serves posts keyed by canonical URL
type fakePosts map[string]*Post

func (f fakePosts) FetchPost(ctx context.Context, locator string) (*Post, error) {
	post, ok := f[locator]
	if !ok {
		return nil, ErrInvalidLocator
	}
	return post, nil
}

type recordingListener struct {
	mu       sync.Mutex
	verified []Binding
	rejected []string
}

func (r *recordingListener) OnVerified(ctx context.Context, b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verified = append(r.verified, b)
}

func (r *recordingListener) OnRejected(ctx context.Context, profileID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, reason)
}

func newSocialService(posts fakePosts, store BindingStore) *Service {
	verifier := NewSocialPostVerifier(SocialPostParser{}, posts, zap.NewNop())
	return NewService(map[Medium]ProofVerifier{MediumSocial: verifier}, store, Config{}, zap.NewNop())
}

func TestHandshakeRoundTrip(t *testing.T) {
	posts := fakePosts{}
	var saved []Binding
	svc := newSocialService(posts, BindingStoreFunc(func(ctx context.Context, b Binding) error {
		saved = append(saved, b)
		return nil
	}))
	listener := &recordingListener{}
	svc.AddListener(listener)
	ctx := context.Background()

	challenge, err := svc.StartChallenge(ctx, "wallet-1", MediumSocial, "@alice")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(challenge.Code, CodePrefix))
	assert.Equal(t, "alice", challenge.SubjectHandle)
	assert.Equal(t, StateChallengeIssued, svc.Status("wallet-1").State)

	posts["https://x.com/Alice/status/1"] = &Post{AuthorHandle: "Alice", Text: "verifying " + challenge.Code}

	outcome, err := svc.SubmitProof(ctx, "wallet-1", "https://twitter.com/Alice/status/1")
	require.NoError(t, err)
	assert.Equal(t, StateVerified, outcome.State)
	assert.True(t, outcome.Matched)
	require.NotNil(t, outcome.Binding)
	assert.Equal(t, "alice", outcome.Binding.Handle)

	status := svc.Status("wallet-1")
	assert.Equal(t, StateVerified, status.State)
	assert.Nil(t, status.Challenge)
	require.Len(t, saved, 1)
	assert.Equal(t, "wallet-1", saved[0].ProfileID)
	assert.Len(t, listener.verified, 1)
}

func TestHandshakeMismatchIssuesFreshCode(t *testing.T) {
	posts := fakePosts{}
	svc := newSocialService(posts, nil)
	listener := &recordingListener{}
	svc.AddListener(listener)
	ctx := context.Background()

	challenge, err := svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)
	posts["https://x.com/bob/status/2"] = &Post{AuthorHandle: "bob", Text: challenge.Code}

	outcome, err := svc.SubmitProof(ctx, "wallet-1", "https://x.com/bob/status/2")
	assert.ErrorIs(t, err, ErrChallengeMismatch)
	assert.Equal(t, CodeChallengeMismatch, ErrorCode(err))
	require.NotNil(t, outcome)
	assert.Equal(t, StateChallengeIssued, outcome.State)
	assert.Contains(t, outcome.Reason, "@bob")
	require.NotNil(t, outcome.Challenge)
	assert.NotEqual(t, challenge.Code, outcome.Challenge.Code)

	status := svc.Status("wallet-1")
	assert.Equal(t, StateChallengeIssued, status.State)
	assert.Equal(t, outcome.Reason, status.LastReason)
	assert.Len(t, listener.rejected, 1)

	// the consumed code is not accepted again
	posts["https://x.com/alice/status/3"] = &Post{AuthorHandle: "alice", Text: challenge.Code}
	_, err = svc.SubmitProof(ctx, "wallet-1", "https://x.com/alice/status/3")
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestHandshakeRejectsPostWithoutCode(t *testing.T) {
	posts := fakePosts{"https://x.com/alice/status/4": {AuthorHandle: "alice", Text: "hello"}}
	svc := newSocialService(posts, nil)

	_, err := svc.StartChallenge(context.Background(), "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)

	outcome, err := svc.SubmitProof(context.Background(), "wallet-1", "https://x.com/alice/status/4")
	assert.ErrorIs(t, err, ErrChallengeMismatch)
	assert.Equal(t, "post does not contain the challenge code", outcome.Reason)
}

func TestStartChallengeValidation(t *testing.T) {
	svc := newSocialService(fakePosts{}, nil)

	_, err := svc.StartChallenge(context.Background(), "wallet-1", MediumSocial, "  ")
	assert.ErrorIs(t, err, ErrMissingHandle)
	assert.Equal(t, CodeMissingHandle, ErrorCode(err))

	_, err = svc.StartChallenge(context.Background(), "wallet-1", "carrier-pigeon", "alice")
	assert.ErrorIs(t, err, ErrUnsupportedMedium)
}

func TestStartChallengeReplacesLiveChallenge(t *testing.T) {
	posts := fakePosts{}
	svc := newSocialService(posts, nil)
	ctx := context.Background()

	first, err := svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)
	second, err := svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, first.Code, second.Code)

	posts["https://x.com/alice/status/5"] = &Post{AuthorHandle: "alice", Text: first.Code}
	_, err = svc.SubmitProof(ctx, "wallet-1", "https://x.com/alice/status/5")
	assert.ErrorIs(t, err, ErrChallengeMismatch)
}

func TestSubmitProofWithoutChallenge(t *testing.T) {
	svc := newSocialService(fakePosts{}, nil)
	_, err := svc.SubmitProof(context.Background(), "wallet-1", "https://x.com/alice/status/1")
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestCancel(t *testing.T) {
	svc := newSocialService(fakePosts{}, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Cancel("wallet-1"), ErrNoActiveChallenge)

	_, err := svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)
	require.NoError(t, svc.Cancel("wallet-1"))
	assert.Equal(t, StateIdle, svc.Status("wallet-1").State)

	_, err = svc.SubmitProof(ctx, "wallet-1", "https://x.com/alice/status/1")
	assert.ErrorIs(t, err, ErrNoActiveChallenge)
}

func TestVerificationCannotBeCancelled(t *testing.T) {
	verifier := new(MockVerifier)
	svc := NewService(map[Medium]ProofVerifier{MediumSocial: verifier}, nil, Config{}, zap.NewNop())

	started := make(chan struct{})
	release := make(chan struct{})
	verifier.On("VerifyProof", mock.Anything, "locator", "alice", mock.Anything).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
			assert.NoError(t, args.Get(0).(context.Context).Err(), "verification context must outlive the caller")
		}).
		Return(VerifyResult{Matched: true}, nil)

	_, err := svc.StartChallenge(context.Background(), "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Outcome)
	go func() {
		outcome, _ := svc.SubmitProof(ctx, "wallet-1", "locator")
		done <- outcome
	}()

	<-started
	cancel()
	assert.ErrorIs(t, svc.Cancel("wallet-1"), ErrVerificationInProgress)
	_, err = svc.StartChallenge(context.Background(), "wallet-1", MediumSocial, "alice")
	assert.ErrorIs(t, err, ErrVerificationInProgress)
	assert.Equal(t, StateScanning, svc.Status("wallet-1").State)

	close(release)
	outcome := <-done
	require.NotNil(t, outcome)
	assert.Equal(t, StateVerified, outcome.State)
}

func TestVerifierErrorReturnsToChallengeIssued(t *testing.T) {
	verifier := new(MockVerifier)
	verifier.On("VerifyProof", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(VerifyResult{}, errors.New("upstream 503"))
	svc := NewService(map[Medium]ProofVerifier{MediumSocial: verifier}, nil, Config{}, zap.NewNop())

	_, err := svc.StartChallenge(context.Background(), "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)

	outcome, err := svc.SubmitProof(context.Background(), "wallet-1", "locator")
	assert.ErrorIs(t, err, ErrVerificationUnavailable)
	assert.Equal(t, CodeVerificationUnavailable, ErrorCode(err))
	assert.Equal(t, StateChallengeIssued, outcome.State)
	assert.NotNil(t, outcome.Challenge)
}

func TestBindingSaveFailureIsNotVerified(t *testing.T) {
	posts := fakePosts{}
	svc := newSocialService(posts, BindingStoreFunc(func(ctx context.Context, b Binding) error {
		return errors.New("connection refused")
	}))
	listener := &recordingListener{}
	svc.AddListener(listener)
	ctx := context.Background()

	challenge, err := svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)
	posts["https://x.com/alice/status/1"] = &Post{AuthorHandle: "alice", Text: challenge.Code}

	outcome, err := svc.SubmitProof(ctx, "wallet-1", "https://x.com/alice/status/1")
	assert.ErrorIs(t, err, ErrBindingNotSaved)
	assert.Equal(t, CodeBindingNotSaved, ErrorCode(err))
	require.NotNil(t, outcome)
	assert.Equal(t, StateChallengeIssued, outcome.State)
	assert.Nil(t, outcome.Binding)
	require.NotNil(t, outcome.Challenge)
	assert.NotEqual(t, challenge.Code, outcome.Challenge.Code)

	status := svc.Status("wallet-1")
	assert.Equal(t, StateChallengeIssued, status.State)
	assert.Nil(t, status.Binding)
	assert.Equal(t, ErrBindingNotSaved.Error(), status.LastReason)
	assert.Empty(t, listener.verified)
}

func TestRejectWithoutNewCodeReturnsToIdle(t *testing.T) {
	posts := fakePosts{}
	svc := newSocialService(posts, nil)
	ctx := context.Background()

	challenge, err := svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)
	svc.newCode = func() (string, error) { return "", errors.New("entropy exhausted") }

	posts["https://x.com/bob/status/2"] = &Post{AuthorHandle: "bob", Text: challenge.Code}
	outcome, err := svc.SubmitProof(ctx, "wallet-1", "https://x.com/bob/status/2")
	assert.Nil(t, outcome)
	assert.ErrorIs(t, err, ErrChallengeMismatch)
	assert.ErrorContains(t, err, "entropy exhausted")

	status := svc.Status("wallet-1")
	assert.Equal(t, StateIdle, status.State)
	assert.Nil(t, status.Challenge)
	assert.Contains(t, status.LastReason, "@bob")

	// the profile is not stuck: a new challenge can be started
	svc.newCode = NewCode
	_, err = svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)
	assert.Equal(t, StateChallengeIssued, svc.Status("wallet-1").State)
}

func TestReverificationStartsOver(t *testing.T) {
	posts := fakePosts{}
	svc := newSocialService(posts, nil)
	ctx := context.Background()

	ch, err := svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)
	posts["https://x.com/alice/status/1"] = &Post{AuthorHandle: "alice", Text: ch.Code}
	_, err = svc.SubmitProof(ctx, "wallet-1", "https://x.com/alice/status/1")
	require.NoError(t, err)

	ch, err = svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice_new")
	require.NoError(t, err)
	posts["https://x.com/alice_new/status/2"] = &Post{AuthorHandle: "alice_new", Text: ch.Code}
	outcome, err := svc.SubmitProof(ctx, "wallet-1", "https://x.com/alice_new/status/2")
	require.NoError(t, err)

	assert.Equal(t, "alice_new", outcome.Binding.Handle)
	assert.Equal(t, "alice_new", svc.Status("wallet-1").Binding.Handle)
}

func TestChallengeExpiry(t *testing.T) {
	posts := fakePosts{}
	svc := newSocialService(posts, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	ch, err := svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultChallengeTTL), ch.ExpiresAt)

	now = now.Add(DefaultChallengeTTL)
	posts["https://x.com/alice/status/1"] = &Post{AuthorHandle: "alice", Text: ch.Code}
	_, err = svc.SubmitProof(ctx, "wallet-1", "https://x.com/alice/status/1")
	assert.ErrorIs(t, err, ErrChallengeExpired)
	assert.Equal(t, StateIdle, svc.Status("wallet-1").State)
}

func TestSweepExpired(t *testing.T) {
	svc := newSocialService(fakePosts{}, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := svc.StartChallenge(ctx, "wallet-1", MediumSocial, "alice")
	require.NoError(t, err)
	now = now.Add(5 * time.Minute)
	_, err = svc.StartChallenge(ctx, "wallet-2", MediumSocial, "bob")
	require.NoError(t, err)

	now = now.Add(DefaultChallengeTTL - time.Minute)
	assert.Equal(t, 1, svc.SweepExpired())

	st := svc.Status("wallet-1")
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, ErrChallengeExpired.Error(), st.LastReason)
	assert.Equal(t, StateChallengeIssued, svc.Status("wallet-2").State)

	sweeper := NewSweeper(svc, "", zap.NewNop())
	require.NoError(t, sweeper.Start())
	assert.Error(t, sweeper.Start())
	sweeper.Run()
	sweeper.Stop()
}

func TestNewCodeIsUnpredictable(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := NewCode()
		require.NoError(t, err)
		assert.Len(t, code, len(CodePrefix)+16)
		assert.False(t, seen[code])
		seen[code] = true
	}
}
