package gateway

import (
	"strings"
	"text/template"

	"github.com/orcaya/payplace-go/internal/model"
)

// mandateText is the SEPA direct-debit mandate the debtor must accept before
// a direct-debit token is requested. The wording is fixed by the creditor.
const mandateText = `<h3>SEPA-Lastschriftmandat</h3><br><p>Ich ermächtige den Zahlungsempfänger (<b>VfB Stuttgart 1893 AG</b>),
Zahlungen von meinem Konto mittels Lastschrift einzuziehen.<br><br><b>Hinweis:</b>Ich kann innerhalb von acht Wochen, beginnend mit dem Belastungsdatum,
die Erstattung des belasteten Betrages verlangen.<br>Es gelten dabei die mit meinem Kreditinstitut vereinbarten Bedingungen.<br><br>
<b>Zahlungspflichtiger</b><br><br>
{{.FirstName}} {{.LastName}}<br>
{{.Street}} {{.StreetNumber}}<br>
{{.Zip}} {{.City}}<br><br>
Die Daten des zu belastenden Kontos werden im nächsten Schritt angegeben.`

var mandateTemplate = template.Must(template.New("mandate").Parse(mandateText))

// RenderMandate fills the mandate text with the debtor's name and address
// from the payment record.
func RenderMandate(rec *model.PaymentRecord) (string, error) {
	var b strings.Builder
	if err := mandateTemplate.Execute(&b, rec); err != nil {
		return "", err
	}
	return b.String(), nil
}
