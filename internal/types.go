package internal

import "math"

type OfferMetadata struct {
	CompanyName        string `json:"companyName"`
	CompanyLegalName   string `json:"companyLegalName"`
	RegistrationNumber string `json:"registrationNumber"`
	VATNumber          string `json:"vatNumber"`
	OfferReference     string `json:"offerReference"`
	OfferDate          string `json:"offerDate"`
	ProductWebPage     string `json:"productWebPage"`
	ImageURLs          string `json:"imageUrls,omitempty"`
}

type TechnicalDetail struct {
	ItemTitle       string `json:"itemTitle"`
	ItemDescription string `json:"itemDescription"`
}

type Product struct {
	ItemNumber        int     `json:"itemNumber"`
	ProductName       string  `json:"productName"`
	UnitOfMeasurement string  `json:"unitOfMeasurement"`
	Quantity          int     `json:"quantity"`
	UnitPriceNoVAT    float64 `json:"unitPriceNoVAT"`
	TotalValueNoVAT   float64 `json:"totalValueNoVAT"`
}

// SetQuantity updates the quantity and recomputes the row total.
func (p *Product) SetQuantity(q int) {
	if q < 0 {
		q = 0
	}
	p.Quantity = q
	p.Recompute()
}

// SetUnitPrice updates the unit price and recomputes the row total.
func (p *Product) SetUnitPrice(price float64) {
	if price < 0 || math.IsNaN(price) {
		price = 0
	}
	p.UnitPriceNoVAT = price
	p.Recompute()
}

func (p *Product) Recompute() {
	p.TotalValueNoVAT = math.Round(float64(p.Quantity)*p.UnitPriceNoVAT*100) / 100
}

type OfferContent struct {
	Title                   string            `json:"title"`
	Subtitle                string            `json:"subtitle"`
	MainMessage             string            `json:"mainMessage,omitempty"`
	TechnicalDetailsMessage string            `json:"technicalDetailsMessage"`
	TechnicalDetailsTable   []TechnicalDetail `json:"technicalDetailsTable"`
	ProductPrice            string            `json:"productPrice"`
	ProductImageURL         string            `json:"productImageUrl,omitempty"`
	ConfidenceMessage       string            `json:"confidenceMessage,omitempty"`
	Products                []Product         `json:"products"`
}

// ImageOverlay is an operator-placed image, positioned in millimetres
// relative to the top-left corner of its detail page. Page is the index
// of the sub-offer (0 for a flat offer) the image sits on.
type ImageOverlay struct {
	Src    string  `json:"src"`
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type CustomPageKind string

const CustomPageBlank CustomPageKind = "blank"

type CustomPage struct {
	ID      string         `json:"id"`
	Kind    CustomPageKind `json:"type"`
	Content string         `json:"content"`
}

type Offer struct {
	Metadata      OfferMetadata  `json:"offerMetadata"`
	Content       OfferContent   `json:"offerContent"`
	SubOffers     []Offer        `json:"subOffers,omitempty"`
	ImageOverlays []ImageOverlay `json:"imageOverlays,omitempty"`
	CustomPages   []CustomPage   `json:"customPages,omitempty"`
}

type UploadStatus string

const (
	StatusPending    UploadStatus = "pending"
	StatusExtracting UploadStatus = "extracting"
	StatusUploading  UploadStatus = "uploading"
	StatusSuccess    UploadStatus = "success"
	StatusError      UploadStatus = "error"
)

func (s UploadStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

type UploadItem struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Size       int64        `json:"size"`
	MimeType   string       `json:"type"`
	Path       string       `json:"-"`
	Source     string       `json:"source"`
	Ref        string       `json:"ref,omitempty"`
	Status     UploadStatus `json:"status"`
	Error      string       `json:"error,omitempty"`
	OfferCount int          `json:"offerCount"`
	CreatedAt  string       `json:"createdAt"`
	UpdatedAt  string       `json:"updatedAt"`
}

// ExtractedFile is a local file read and encoded for the extraction webhook.
type ExtractedFile struct {
	Filename string
	Data     string
	Size     int64
	MimeType string
	Raw      []byte
}

// IncomingDocument is one attachment or file picked up by an intake source.
type IncomingDocument struct {
	Source   string
	Ref      string
	Filename string
	MimeType string
	Content  []byte
}

// ProcessingState records whether a batch is running and since when.
type ProcessingState struct {
	Processing bool   `json:"processing"`
	Since      string `json:"since,omitempty"`
}

// IntakeMessage is a mail message seen by an intake connector.
type IntakeMessage struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

// MailMessage is a raw message pulled from a mailbox.
type MailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
