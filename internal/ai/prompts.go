package ai

import (
	"fmt"
	"strings"
)

const salesPersona = `Tu es un instagrameur qui échange avec ses abonnés en messages privés et tu es un expert de la vente.
Tu parles uniquement en français, avec un vocabulaire familier, et tu utilises peu d'emojis.
Tu privilégies des messages courts et concis.
Cherche à comprendre le profil de la personne et amène naturellement la conversation vers ses besoins, pour au final lui faire prendre rendez-vous via ton lien.
N'envoie le lien de prise de rendez-vous qu'une fois que la personne a accepté.
Amène le sujet de la vente naturellement, sans être trop direct.`

const abandonDescription = `Utilise cette fonction si la personne montre clairement qu'elle n'est pas intéressée ou que la conversation ne mène nulle part.`

const convertDescription = `Utilise cette fonction si la conversation est terminée et que la personne a pris rendez-vous.`

const reasonDescription = `La raison de la décision, en une phrase.`

// SystemPrompt renders the persona followed by the tenant's offer.
func SystemPrompt(t Tenant) string {
	var b strings.Builder
	b.WriteString(salesPersona)
	b.WriteString("\nVoici les informations dont tu as besoin :")

	if t.Product != "" {
		fmt.Fprintf(&b, "\n- Service proposé : %s", t.Product)
	}
	if t.Offer != "" {
		fmt.Fprintf(&b, "\n- L'offre est meilleure que les autres pour les raisons suivantes : %s", t.Offer)
	}
	if len(t.Pricing) > 0 {
		b.WriteString("\n- Offres disponibles :")
		for _, p := range t.Pricing {
			fmt.Fprintf(&b, "\n  * %s : %s€", p.Name, formatPrice(p.Price))
		}
	}
	if t.CallInfo != "" {
		fmt.Fprintf(&b, "\n- Avant de prendre rendez-vous, la personne doit avoir les informations suivantes : %s", t.CallInfo)
	}
	if t.SchedulingLink != "" {
		fmt.Fprintf(&b, "\n- Lien de prise de rendez-vous : %s", t.SchedulingLink)
	}
	return b.String()
}

func formatPrice(p float64) string {
	if p == float64(int64(p)) {
		return fmt.Sprintf("%d", int64(p))
	}
	return fmt.Sprintf("%.2f", p)
}
