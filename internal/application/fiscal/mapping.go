package fiscal

import (
	"strings"

	"github.com/jhoicas/Fiscal-api/internal/application/dto"
	"github.com/jhoicas/Fiscal-api/internal/domain/entity"
)

// EmitRequestFromDTO convierte el body HTTP en la solicitud de emisión.
func EmitRequestFromDTO(in dto.EmitDocumentRequest) EmitRequest {
	req := EmitRequest{
		SaleID:         in.SaleID,
		Model:          in.Model,
		Series:         in.Series,
		Operation:      in.Operation,
		AdditionalInfo: in.AdditionalInfo,
		Items:          make([]entity.FiscalItem, 0, len(in.Items)),
		Payments:       make([]entity.Payment, 0, len(in.Payments)),
	}
	if b := in.Buyer; b != nil {
		req.Buyer = &entity.Buyer{
			Document:  b.Document,
			ForeignID: b.ForeignID,
			Name:      b.Name,
			UF:        strings.ToUpper(b.UF),
			Email:     b.Email,
		}
		if b.Address != nil {
			addr := addressFromDTO(*b.Address)
			req.Buyer.Address = &addr
			if req.Buyer.UF == "" {
				req.Buyer.UF = addr.UF
			}
		}
	}
	for _, it := range in.Items {
		req.Items = append(req.Items, entity.FiscalItem{
			Code:         it.Code,
			EAN:          it.EAN,
			Description:  it.Description,
			NCM:          it.NCM,
			CEST:         it.CEST,
			CFOP:         it.CFOP,
			Unit:         it.Unit,
			Origin:       it.Origin,
			TaxSituation: it.TaxSituation,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			Discount:     it.Discount,
			ICMSRate:     it.ICMSRate,
			PISRate:      it.PISRate,
			COFINSRate:   it.COFINSRate,
		})
	}
	for _, p := range in.Payments {
		req.Payments = append(req.Payments, entity.Payment{Method: p.Method, Amount: p.Amount})
	}
	return req
}

func addressFromDTO(a dto.AddressRequest) entity.Address {
	return entity.Address{
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		District:   a.District,
		CityCode:   a.CityCode,
		CityName:   a.CityName,
		UF:         strings.ToUpper(a.UF),
		ZipCode:    a.ZipCode,
		Phone:      a.Phone,
	}
}

func addressToDTO(a entity.Address) dto.AddressRequest {
	return dto.AddressRequest{
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		District:   a.District,
		CityCode:   a.CityCode,
		CityName:   a.CityName,
		UF:         a.UF,
		ZipCode:    a.ZipCode,
		Phone:      a.Phone,
	}
}

// DocumentToResponse convierte el documento a DTO.
func DocumentToResponse(d *entity.FiscalDocument) dto.DocumentResponse {
	return dto.DocumentResponse{
		ID:                d.ID,
		SaleID:            d.SaleID,
		Model:             d.Model,
		Series:            d.Series,
		Number:            d.Number,
		AccessKey:         d.AccessKey,
		IssuedAt:          d.IssuedAt,
		EmissionMode:      string(d.EmissionMode),
		Environment:       d.Environment,
		Status:            string(d.Status),
		StatusCode:        d.StatusCode,
		StatusReason:      d.StatusReason,
		Protocol:          d.Protocol,
		AuthorizedAt:      d.AuthorizedAt,
		ContingencyReason: d.ContingencyReason,
		Total:             d.Totals.Total,
		Change:            d.Totals.Change,
		QRCodeURL:         d.QRCodeURL,
	}
}

// EmissionToResponse convierte el resultado de Emit a DTO.
func EmissionToResponse(r *EmissionResult) dto.EmissionResponse {
	return dto.EmissionResponse{
		Document:     DocumentToResponse(r.Document),
		Contingency:  r.Contingency,
		QueueEntryID: r.QueueEntryID,
	}
}

// CancellationToResponse convierte el cancelamento a DTO.
func CancellationToResponse(c *entity.Cancellation) dto.CancellationResponse {
	return dto.CancellationResponse{
		ID:            c.ID,
		DocumentID:    c.DocumentID,
		AccessKey:     c.AccessKey,
		Status:        string(c.Status),
		StatusCode:    c.StatusCode,
		StatusReason:  c.StatusReason,
		EventProtocol: c.EventProtocol,
		RegisteredAt:  c.RegisteredAt,
	}
}

// InutilizationToResponse convierte la inutilização a DTO.
func InutilizationToResponse(i *entity.Inutilization) dto.InutilizationResponse {
	return dto.InutilizationResponse{
		ID:           i.ID,
		Model:        i.Model,
		Series:       i.Series,
		Year:         i.Year,
		Start:        i.Start,
		End:          i.End,
		Status:       string(i.Status),
		StatusCode:   i.StatusCode,
		StatusReason: i.StatusReason,
		Protocol:     i.Protocol,
		CreatedAt:    i.CreatedAt,
	}
}

// QueueEntryToResponse convierte una entrada de la cola a DTO.
func QueueEntryToResponse(e *entity.QueueEntry) dto.QueueEntryResponse {
	return dto.QueueEntryResponse{
		ID:            e.ID,
		DocumentID:    e.DocumentID,
		AccessKey:     e.AccessKey,
		State:         string(e.State),
		Attempts:      e.Attempts,
		LastError:     e.LastError,
		EnqueuedAt:    e.EnqueuedAt,
		LastAttemptAt: e.LastAttemptAt,
	}
}

// ContingencyStateToResponse convierte el estado de contingencia a DTO.
func ContingencyStateToResponse(s entity.ContingencyState) dto.ContingencyStateResponse {
	out := dto.ContingencyStateResponse{Active: s.Active}
	if s.Active {
		at := s.EnteredAt
		out.Mode = string(s.Mode)
		out.EnteredAt = &at
		out.Reason = s.Reason
	}
	return out
}

// DrainReportToResponse convierte el reporte de drenaje a DTO.
func DrainReportToResponse(r DrainReport) dto.DrainResponse {
	return dto.DrainResponse{
		Processed:   r.Processed,
		Transmitted: r.Transmitted,
		Failed:      r.Failed,
		Stopped:     r.Stopped,
	}
}
