package server

import (
	"fmt"

	"github.com/Nihad1903/azmiu-guest-web/internal/models"
	"github.com/Nihad1903/azmiu-guest-web/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/skip2/go-qrcode"
)

const qrImageSize = 256

// CreateRequest handles POST /api/qr-requests/
func (s *Server) CreateRequest(c *fiber.Ctx) error {
	var input service.SubmitRequestInput
	if err := c.BodyParser(&input); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req, err := s.requestService.Submit(c.Context(), currentUserID(c), input)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(req)
}

// GetMyRequests handles GET /api/qr-requests/my
func (s *Server) GetMyRequests(c *fiber.Ctx) error {
	p := parsePagination(c, 50)
	requests, err := s.requestService.ListMine(c.Context(), currentUserID(c), p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(requests)
}

// GetAllRequests handles GET /api/qr-requests/all
func (s *Server) GetAllRequests(c *fiber.Ctx) error {
	p := parsePagination(c, 50)
	requests, err := s.requestService.ListAll(c.Context(), p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(requests)
}

// GetPendingRequests handles GET /api/qr-requests/pending
func (s *Server) GetPendingRequests(c *fiber.Ctx) error {
	p := parsePagination(c, 50)
	requests, err := s.requestService.ListPending(c.Context(), p.Limit, p.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(requests)
}

// GetRequest handles GET /api/qr-requests/:id. Managers can only read
// their own requests; superusers can read any.
func (s *Server) GetRequest(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.requestService.Get(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	if err := s.authorizeRequestAccess(c, req); err != nil {
		return nil
	}
	return c.JSON(req)
}

// ApproveRequest handles POST /api/qr-requests/:id/approve
func (s *Server) ApproveRequest(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.requestService.Approve(c.Context(), id, currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// RejectRequest handles POST /api/qr-requests/:id/reject
func (s *Server) RejectRequest(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	req, err := s.requestService.Reject(c.Context(), id, currentUserID(c), body.Reason)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(req)
}

// DeleteRequest handles DELETE /api/qr-requests/:id
func (s *Server) DeleteRequest(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.requestService.Delete(c.Context(), id, currentUserID(c)); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DownloadQRCode handles GET /api/qr-requests/:id/qr-code. It renders the
// provider-assigned card number of an approved request as a PNG download.
func (s *Server) DownloadQRCode(c *fiber.Ctx) error {
	id, err := s.parseUUID(c, "id")
	if err != nil {
		return nil
	}

	req, err := s.requestService.Get(c.Context(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	if err := s.authorizeRequestAccess(c, req); err != nil {
		return nil
	}

	if req.Status != models.RequestStatusApproved || req.QRNumber == nil {
		return models.RespondWithError(c, fiber.StatusConflict, &models.AppError{
			Code:    models.CodeWorkflowState,
			Message: fmt.Sprintf("QR code is only available for APPROVED requests; current status is %q", req.Status),
		})
	}

	png, err := qrcode.Encode(*req.QRNumber, qrcode.Medium, qrImageSize)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="qr-%s.png"`, *req.QRNumber))
	return c.Send(png)
}

// authorizeRequestAccess allows the owning manager or a superuser to read
// a request. On failure it writes the response and returns
// errResponseWritten.
func (s *Server) authorizeRequestAccess(c *fiber.Ctx, req *models.GuestRequest) error {
	if req.ManagerID == currentUserID(c) {
		return nil
	}
	user, err := s.currentUser(c)
	if err != nil {
		return errResponseWritten
	}
	if user.IsSuperuser() {
		return nil
	}
	_ = models.RespondWithError(c, fiber.StatusForbidden,
		models.NewPermissionError("You do not have access to this request"))
	return errResponseWritten
}
