package market

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// YieldSource é o adaptador externo de curva de yield / split de principal.
// Split e Redeem movimentam instrumentos na custódia informada e são idempotentes
// por key: repetir a chamada com a mesma key devolve o mesmo resultado sem mover nada.
// Erros de validação (ErrSourceRejected, ErrInsufficientFunds...) garantem que nada foi aplicado.
type YieldSource interface {
	Instruments(ctx context.Context) (principal, yield common.Address, err error)
	QuoteRate(ctx context.Context, days uint32) (rateBps uint32, err error)
	Split(ctx context.Context, key string, custody common.Address, amount *uint256.Int, days uint32) (principal, yield *uint256.Int, err error)
	Redeem(ctx context.Context, key string, custody common.Address, principal, yield *uint256.Int) (*uint256.Int, error)
}

// Sources resolve a referência de um binding para o adaptador correspondente
type Sources interface {
	Lookup(ref common.Address) (YieldSource, bool)
}

// SourceMap é a implementação trivial de Sources
type SourceMap map[common.Address]YieldSource

func (m SourceMap) Lookup(ref common.Address) (YieldSource, bool) {
	s, ok := m[ref]
	return s, ok
}

// Movement é uma transferência de token. From zero = mint, To zero = burn.
// Spender não-zero consome allowance de From (transferFrom).
type Movement struct {
	Token   common.Address
	From    common.Address
	To      common.Address
	Spender common.Address
	Amount  *uint256.Int
	Memo    string
}

// Vault é a primitiva de transferência do ativo e dos instrumentos.
// Transfer aplica o lote inteiro ou nada.
// TransferOnce faz o mesmo no máximo uma vez por key; applied=false quando a key já foi usada.
type Vault interface {
	Transfer(ctx context.Context, moves ...Movement) error
	TransferOnce(ctx context.Context, key string, moves ...Movement) (applied bool, err error)
	Applied(ctx context.Context, key string) (bool, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*uint256.Int, error)
}

// Journal é o store versionado de eventos por market
type Journal interface {
	Append(ctx context.Context, market common.Address, seq uint64, ev Event) error
	LoadSince(ctx context.Context, market common.Address, afterSeq uint64) ([]Record, error)
	Markets(ctx context.Context) ([]common.Address, error)
}

// Publisher notifica assinantes depois do commit; falhas não desfazem a operação.
// Quem precisa de entrega garantida publica a partir do journal (ver producer.Relay).
type Publisher interface {
	Publish(ctx context.Context, market common.Address, rec Record) error
}

// Record é um evento já sequenciado
type Record struct {
	Seq   uint64
	At    time.Time
	Event Event
}

// Clock permite controlar o tempo nos testes
type Clock func() time.Time
