package integrity

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/trustbloc/logutil-go/pkg/log"
	"golang.org/x/sync/errgroup"

	fedtrust "github.com/pilacorp/go-fedtrust"
	"github.com/pilacorp/go-fedtrust/blobstore"
	"github.com/pilacorp/go-fedtrust/credential/common/crypto"
	"github.com/pilacorp/go-fedtrust/credential/common/provider"
	"github.com/pilacorp/go-fedtrust/credential/common/signable"
	"github.com/pilacorp/go-fedtrust/credential/vc"
	"github.com/pilacorp/go-fedtrust/did"
	"github.com/pilacorp/go-fedtrust/internal/logfields"
	"github.com/pilacorp/go-fedtrust/ledger"
	"github.com/pilacorp/go-fedtrust/metrics"
)

const (
	defaultConcurrency   = 4
	defaultVerifyTimeout = 30 * time.Second
)

// Stage identifies a check of the verification chain.
type Stage int

// Checks in the order Verify runs them.
const (
	StageResolveHolder    Stage = iota + 1 // decode the pointer and resolve its holder
	StagePointerSignature                  // the holder signed the pointer
	StageCredential                        // the cohort issuer credentialed the holder
	StageFetchBlob                         // the addressed blob exists and decodes
	StageDigestSignature                   // the holder signed the committed digest
	StageDigest                            // the payload matches the committed digest
)

func (s Stage) String() string {
	switch s {
	case StageResolveHolder:
		return "resolve-holder"
	case StagePointerSignature:
		return "pointer-signature"
	case StageCredential:
		return "credential"
	case StageFetchBlob:
		return "fetch-blob"
	case StageDigestSignature:
		return "digest-signature"
	case StageDigest:
		return "digest"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError reports the first check a record failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrDuplicate marks a record that repeats an accepted contribution of the same holder.
var ErrDuplicate = errors.New("duplicate contribution")

// Contribution is a payload accepted for a round.
type Contribution struct {
	RecordID   ledger.RecordID
	Holder     string
	Address    string
	Payload    []byte
	Credential *vc.Credential
}

// Rejection is a record that failed verification.
type Rejection struct {
	RecordID ledger.RecordID
	Err      error
}

// RoundResult holds the outcome of collecting one round.
type RoundResult struct {
	Accepted []*Contribution
	Rejected []Rejection
}

// VerifierOpt configures a Verifier.
type VerifierOpt func(*Verifier)

// WithTagPrefix sets the prefix of round tags.
func WithTagPrefix(prefix string) VerifierOpt {
	return func(v *Verifier) {
		v.tagPrefix = prefix
	}
}

// WithConcurrency bounds how many records are verified at once.
func WithConcurrency(n int) VerifierOpt {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithVerifyTimeout bounds verification of the records gathered by a round whose
// collection deadline passed.
func WithVerifyTimeout(d time.Duration) VerifierOpt {
	return func(v *Verifier) {
		if d > 0 {
			v.verifyTimeout = d
		}
	}
}

// WithMetrics counts verification outcomes by stage.
func WithMetrics(m *metrics.Metrics) VerifierOpt {
	return func(v *Verifier) {
		v.metrics = m
	}
}

// Verifier checks contributions against the cohort issuer.
type Verifier struct {
	issuerDoc     *did.Document
	credentials   *vc.Engine
	resolver      provider.Resolver
	blobs         blobstore.Store
	channel       *ledger.Channel
	metrics       *metrics.Metrics
	tagPrefix     string
	concurrency   int
	verifyTimeout time.Duration
}

func NewVerifier(issuerDoc *did.Document, credentials *vc.Engine, resolver provider.Resolver,
	blobs blobstore.Store, channel *ledger.Channel, opts ...VerifierOpt,
) *Verifier {
	v := &Verifier{
		issuerDoc:     issuerDoc,
		credentials:   credentials,
		resolver:      resolver,
		blobs:         blobs,
		channel:       channel,
		tagPrefix:     ledger.DefaultTagPrefix,
		concurrency:   defaultConcurrency,
		verifyTimeout: defaultVerifyTimeout,
	}
	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Verify runs the chain on one record and stops at the first failing check.
func (v *Verifier) Verify(ctx context.Context, rec ledger.Record) (*Contribution, error) {
	c, err := v.verify(ctx, rec)
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			v.metrics.IncContribution(se.Stage.String())
		}

		return nil, err
	}

	v.metrics.IncContribution("accepted")

	return c, nil
}

func (v *Verifier) verify(ctx context.Context, rec ledger.Record) (*Contribution, error) {
	fail := func(stage Stage, err error) (*Contribution, error) {
		return nil, &StageError{Stage: stage, Err: err}
	}

	// 1. Decode the pointer and resolve the holder named by its credential.
	pointer, err := signable.Parse(rec.Payload)
	if err != nil {
		return fail(StageResolveHolder, err)
	}

	rawVC, address, err := DecodePointer(pointer.Data)
	if err != nil {
		return fail(StageResolveHolder, err)
	}

	cred, err := vc.Parse(rawVC)
	if err != nil {
		return fail(StageResolveHolder, err)
	}

	holder := cred.Subject.ID

	signer, err := pointer.Signer()
	if err != nil {
		return fail(StageResolveHolder, err)
	}
	if signer != holder {
		return fail(StageResolveHolder, fedtrust.NewValidationError(fedtrust.SubjectMismatch,
			"pointer signed by %s, credential names %s", signer, holder))
	}

	holderDoc, err := v.resolver.Resolve(ctx, holder)
	if err != nil {
		return fail(StageResolveHolder, err)
	}

	// 2. The pointer was anchored by the holder.
	if err = pointer.Verify(holderDoc); err != nil {
		return fail(StagePointerSignature, err)
	}

	// 3. The holder was credentialed by the cohort issuer.
	if cred, err = v.credentials.Validate(rawVC, v.issuerDoc); err != nil {
		return fail(StageCredential, err)
	}

	// 4. Fetch the blob and split it.
	blob, err := v.blobs.Get(ctx, address)
	if err != nil {
		return fail(StageFetchBlob, err)
	}

	payload, signedHash, err := DecodeBlob(blob)
	if err != nil {
		return fail(StageFetchBlob, err)
	}

	// 5. The digest was committed by the same holder.
	if err = signedHash.Verify(holderDoc); err != nil {
		return fail(StageDigestSignature, err)
	}

	// 6. The payload is the committed one.
	committed, err := hex.DecodeString(signedHash.Data)
	if err != nil {
		return fail(StageDigest, fedtrust.NewValidationError(fedtrust.Malformed, "committed digest is not hex: %w", err))
	}
	if !bytes.Equal(crypto.Digest(payload), committed) {
		return fail(StageDigest, fedtrust.NewValidationError(fedtrust.BadSignature, "payload digest does not match commitment"))
	}

	return &Contribution{
		RecordID:   rec.ID,
		Holder:     holder,
		Address:    address,
		Payload:    payload,
		Credential: cred,
	}, nil
}

// Collect polls the round's tag for n distinct records and verifies them concurrently.
// Records repeating an accepted (holder, address) pair are rejected with ErrDuplicate.
// When polling ends early the partial result is returned with fedtrust.ErrPollIncomplete.
// Records gathered before ctx's deadline are still verified, within the verify timeout.
func (v *Verifier) Collect(ctx context.Context, round, n int) (*RoundResult, error) {
	tag := ledger.RoundTag(v.tagPrefix, round)

	records, pollErr := v.channel.PollUntil(ctx, tag, n)
	if pollErr != nil && !errors.Is(pollErr, fedtrust.ErrPollIncomplete) {
		return nil, pollErr
	}

	type outcome struct {
		contribution *Contribution
		err          error
	}

	outcomes := make([]outcome, len(records))

	verifyCtx := ctx
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var cancel context.CancelFunc
		verifyCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), v.verifyTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(verifyCtx)
	g.SetLimit(v.concurrency)

	for i, rec := range records {
		g.Go(func() error {
			c, err := v.Verify(gctx, rec)
			outcomes[i] = outcome{contribution: c, err: err}

			return nil
		})
	}

	_ = g.Wait()

	result := &RoundResult{}
	seen := make(map[string]struct{}, len(records))

	for i, o := range outcomes {
		id := records[i].ID

		if o.err != nil {
			logger.Warnc(ctx, "Contribution rejected", logfields.WithRound(round),
				logfields.WithRecordID(string(id)), log.WithError(o.err))
			result.Rejected = append(result.Rejected, Rejection{RecordID: id, Err: o.err})

			continue
		}

		key := o.contribution.Holder + "\n" + o.contribution.Address
		if _, dup := seen[key]; dup {
			result.Rejected = append(result.Rejected, Rejection{RecordID: id, Err: ErrDuplicate})
			continue
		}
		seen[key] = struct{}{}

		result.Accepted = append(result.Accepted, o.contribution)
	}

	logger.Infoc(ctx, "Round collected", logfields.WithRound(round), logfields.WithTarget(n),
		logfields.WithCount(len(result.Accepted)))

	return result, pollErr
}
