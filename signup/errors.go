package signup

import (
	"errors"
	"fmt"
)

// Terminal negotiation failures. Messages are user-facing: they say why
// the connection failed and what to do next.
var (
	// ErrCodeAlreadyUsed: the authorization code was already exchanged;
	// the user must restart the embedded signup flow to get a new one.
	ErrCodeAlreadyUsed = errors.New("código de autorização já utilizado; reinicie a conexão com o WhatsApp")

	// ErrAccountNotDirectlyAccessible: the user connected in "existing"
	// mode but their personal identity has no direct access to any WABA.
	// They need to be granted access in the Business Manager, or use the
	// "new account" path instead.
	ErrAccountNotDirectlyAccessible = errors.New("sua conta pessoal não tem acesso direto a nenhuma conta WhatsApp Business; peça acesso no gerenciador de negócios ou conecte criando uma conta nova")

	// ErrInvalidState: the state parameter could not be decoded.
	ErrInvalidState = errors.New("state de conexão inválido; reinicie a conexão com o WhatsApp")
)

// ProviderError wraps an unexpected provider failure, preserving the raw
// message for diagnostics while keeping a stable type at the boundary.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("erro inesperado do provedor durante %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
