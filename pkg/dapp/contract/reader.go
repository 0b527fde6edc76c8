package contract

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/Amr-9/DevMint/pkg/dapp"
	"github.com/Amr-9/DevMint/pkg/dapp/wallet"
)

// Reader performs read-only calls. It is safe for concurrent use.
type Reader struct {
	address common.Address
	abi     abi.ABI
	limiter *rate.Limiter // nil means unthrottled
	timeout time.Duration // 0 means no per-call deadline
	log     *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithRateLimit caps outbound calls at rps with the given burst.
func WithRateLimit(rps float64, burst int) ReaderOption {
	return func(r *Reader) {
		if rps <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCallTimeout bounds every call. Zero keeps calls unbounded.
func WithCallTimeout(d time.Duration) ReaderOption {
	return func(r *Reader) {
		r.timeout = d
	}
}

// WithReaderLogger sets the logger.
func WithReaderLogger(l *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.log = l
	}
}

// NewReader creates a reader for the contract at address.
func NewReader(address common.Address, opts ...ReaderOption) *Reader {
	r := &Reader{address: address, abi: parsedABI, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Address returns the contract address.
func (r *Reader) Address() common.Address {
	return r.address
}

// Query calls a view method and returns its decoded outputs.
func (r *Reader) Query(ctx context.Context, s *wallet.Session, method string, args ...any) ([]any, error) {
	if s == nil {
		return nil, dapp.ErrNotConnected
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, &dapp.RemoteCallError{Method: method, Err: err}
		}
	}
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, &dapp.RemoteCallError{Method: method, Err: err}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	out, err := s.Backend().CallContract(ctx, ethereum.CallMsg{To: &r.address, Data: data}, nil)
	if err != nil {
		r.log.Debug("contract call failed", "method", method, "err", err)
		return nil, classify(method, err)
	}
	values, err := r.abi.Unpack(method, out)
	if err != nil {
		return nil, &dapp.RemoteCallError{Method: method, Err: err}
	}
	return values, nil
}

// PresaleStarted reads presaleStarted().
func (r *Reader) PresaleStarted(ctx context.Context, s *wallet.Session) (bool, error) {
	values, err := r.Query(ctx, s, MethodPresaleStarted)
	if err != nil {
		return false, err
	}
	v, ok := values[0].(bool)
	if !ok {
		return false, unexpected(MethodPresaleStarted, values[0])
	}
	return v, nil
}

// PresaleEnd reads presaleEnded(), the unix time at which the presale closes.
func (r *Reader) PresaleEnd(ctx context.Context, s *wallet.Session) (time.Time, error) {
	v, err := r.uint(ctx, s, MethodPresaleEnded)
	if err != nil {
		return time.Time{}, err
	}
	if v > math.MaxInt64 {
		return time.Time{}, &dapp.RemoteCallError{Method: MethodPresaleEnded, Err: fmt.Errorf("timestamp %d out of range", v)}
	}
	return time.Unix(int64(v), 0), nil
}

// TokenIDs reads tokenIds(), the number of tokens minted so far.
func (r *Reader) TokenIDs(ctx context.Context, s *wallet.Session) (uint64, error) {
	return r.uint(ctx, s, MethodTokenIDs)
}

// MaxTokenIDs reads maxTokenIds(), the supply cap.
func (r *Reader) MaxTokenIDs(ctx context.Context, s *wallet.Session) (uint64, error) {
	return r.uint(ctx, s, MethodMaxTokenIDs)
}

// Owner reads owner().
func (r *Reader) Owner(ctx context.Context, s *wallet.Session) (common.Address, error) {
	values, err := r.Query(ctx, s, MethodOwner)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, unexpected(MethodOwner, values[0])
	}
	return v, nil
}

func (r *Reader) uint(ctx context.Context, s *wallet.Session, method string) (uint64, error) {
	values, err := r.Query(ctx, s, method)
	if err != nil {
		return 0, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return 0, unexpected(method, values[0])
	}
	if !v.IsUint64() {
		return 0, &dapp.RemoteCallError{Method: method, Err: fmt.Errorf("value %s out of range", v)}
	}
	return v.Uint64(), nil
}

func unexpected(method string, v any) error {
	return &dapp.RemoteCallError{Method: method, Err: fmt.Errorf("unexpected result type %T", v)}
}
