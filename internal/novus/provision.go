package novus

import (
	"context"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	usersPath       = "/api/Users"
	cardsPath       = "/api/Cards"
	credentialsPath = "/api/Credentials"
)

// DefaultAccessLevel is the NOVUS access level assigned to guest
// credentials when none is configured.
const DefaultAccessLevel = 16002

// credentialValidity is how long a provisioned credential stays valid.
const credentialValidity = 365 * 24 * time.Hour

// Guest carries the fields sent to NOVUS when creating a guest user.
type Guest struct {
	FirstName string
	LastName  string
	Email     string
	Remark    string
}

// Result holds the identifiers assigned by NOVUS during provisioning.
// CardNumber is the provider-authoritative value, which may differ from
// the candidate number this service generated.
type Result struct {
	UserID       string
	CardID       string
	CredentialID string
	CardNumber   string
}

// TokenSource obtains a bearer token for provider calls.
type TokenSource interface {
	Authenticate(ctx context.Context) (string, error)
}

// ProvisionService runs the NOVUS provisioning sequence. It is the only
// code that knows the required ordering: a user must exist before a card
// can be linked, and a card must exist before a credential can reference
// it.
type ProvisionService struct {
	client      *Client
	auth        TokenSource
	accessLevel int
	logger      *slog.Logger
}

// NewProvisionService returns a ProvisionService using the given access
// level, or DefaultAccessLevel when accessLevel is not positive.
func NewProvisionService(client *Client, auth TokenSource, accessLevel int, logger *slog.Logger) *ProvisionService {
	if accessLevel <= 0 {
		accessLevel = DefaultAccessLevel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProvisionService{client: client, auth: auth, accessLevel: accessLevel, logger: logger}
}

// Provision executes the full sequence: authenticate, create guest user,
// create QR card, create credential. Steps run in strict order, nothing
// is retried, and the first failure aborts the whole sequence.
func (s *ProvisionService) Provision(ctx context.Context, g Guest) (*Result, error) {
	token, err := s.auth.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	userID, err := s.createGuestUser(ctx, token, g)
	if err != nil {
		return nil, err
	}

	cardID, cardNumber, err := s.createQRCard(ctx, token, generateCardNumber())
	if err != nil {
		return nil, err
	}

	credentialID, err := s.createCredential(ctx, token, userID, cardID)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "NOVUS provisioning complete",
		slog.Int64("user_id", userID),
		slog.Int64("card_id", cardID),
		slog.Int64("credential_id", credentialID),
		slog.String("card_number", cardNumber),
	)

	return &Result{
		UserID:       strconv.FormatInt(userID, 10),
		CardID:       strconv.FormatInt(cardID, 10),
		CredentialID: strconv.FormatInt(credentialID, 10),
		CardNumber:   cardNumber,
	}, nil
}

// createGuestUser creates a guest user in NOVUS and returns its id.
func (s *ProvisionService) createGuestUser(ctx context.Context, token string, g Guest) (int64, error) {
	payload := map[string]any{
		"firstName": g.FirstName,
		"lastName":  g.LastName,
		"email":     g.Email,
		"remark":    g.Remark,
		"male":      true,
		"type":      "Guest",
	}
	body, err := s.client.Post(ctx, usersPath, token, payload)
	if err != nil {
		return 0, err
	}

	obj := safeDetail(body)
	userID, ok := jsonInt(obj["id"])
	if !ok {
		return 0, &ResponseError{Message: `NOVUS create-user response missing "id"`, Detail: obj}
	}
	s.logger.InfoContext(ctx, "NOVUS guest user created", slog.Int64("user_id", userID))
	return userID, nil
}

// createQRCard creates a QR card in NOVUS and returns its id and number.
// NOVUS may normalise the number it was sent, so the response values are
// authoritative.
func (s *ProvisionService) createQRCard(ctx context.Context, token, number string) (int64, string, error) {
	payload := map[string]any{
		"number":             number,
		"type":               "QRCode",
		"cardFormatId":       0,
		"remark":             "",
		"cardPresentationId": 0,
		"id":                 0,
	}
	body, err := s.client.Post(ctx, cardsPath, token, payload)
	if err != nil {
		return 0, "", err
	}

	obj := safeDetail(body)
	cardID, idOK := jsonInt(obj["id"])
	actualNumber, numOK := jsonValueString(obj["number"])
	if !idOK || !numOK {
		return 0, "", &ResponseError{Message: `NOVUS create-card response missing "id" or "number"`, Detail: obj}
	}
	s.logger.InfoContext(ctx, "NOVUS QR card created",
		slog.Int64("card_id", cardID), slog.String("card_number", actualNumber))
	return cardID, actualNumber, nil
}

// createCredential links a card to a user in NOVUS and returns the
// credential id. The credential expires credentialValidity from now, UTC.
func (s *ProvisionService) createCredential(ctx context.Context, token string, userID, cardID int64) (int64, error) {
	payload := map[string]any{
		"accessLevel":    s.accessLevel,
		"userId":         userID,
		"expirationDate": time.Now().UTC().Add(credentialValidity).Format(time.RFC3339),
		"cards":          []int64{cardID},
		"vehicles":       []int64{},
		"qrCodes":        []int64{cardID},
	}
	body, err := s.client.Post(ctx, credentialsPath, token, payload)
	if err != nil {
		return 0, err
	}

	obj := safeDetail(body)
	credentialID, ok := jsonInt(obj["id"])
	if !ok {
		return 0, &ResponseError{Message: `NOVUS create-credential response missing "id"`, Detail: obj}
	}
	s.logger.InfoContext(ctx, "NOVUS credential created", slog.Int64("credential_id", credentialID))
	return credentialID, nil
}

// generateCardNumber produces a candidate 6-digit card number from the
// leading decimal digits of a random uuid's 128-bit integer form. The
// provider-returned number remains authoritative.
func generateCardNumber() string {
	id := uuid.New()
	digits := new(big.Int).SetBytes(id[:]).String()
	if len(digits) > 6 {
		digits = digits[:6]
	}
	return digits
}

// jsonInt reads a JSON-decoded value as an integer id. Numbers arrive as
// float64 from encoding/json; some deployments return ids as strings.
func jsonInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// jsonValueString reads a JSON-decoded value as a string, accepting
// numbers as well since NOVUS is inconsistent about card number types.
func jsonValueString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		if s == "" {
			return "", false
		}
		return s, true
	case float64:
		return strconv.FormatInt(int64(s), 10), true
	default:
		return "", false
	}
}
