package forum

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	errs "gmdaily/pkg/errors"
)

const (
	// CreditsPath lists the account's credit balances
	CreditsPath = "home.php?mod=spacecp&ac=credit&op=base"

	// ExchangePath converts one credit type into another
	ExchangePath = "home.php?mod=spacecp&ac=credit&op=exchange&handlekey=credit&inajax=1"

	// TaskLogPath lists how often each reward rule has fired
	TaskLogPath = "home.php?mod=spacecp&ac=credit&op=log&suboperation=creditrulelog"

	// BloodCredit is the credit spent on exchanges
	BloodCredit = "血液"
)

const (
	markerCheckInOK      = "签到成功"
	markerCheckInAlready = "已签"
	markerPokedToday     = "今天您已经打过招呼了"
	markerPokeSent       = "已发送"
	markerPokeNotify     = "下次访问时会收到通知"
	markerExchangeOK     = "积分操作成功"
)

var (
	creditPattern        = regexp.MustCompile(`^(.+?)[:：]\s*([\d,]+\s*\S*)`)
	exchangeErrorPattern = regexp.MustCompile(`errorhandle_credit\('([^']+)'`)
)

// CheckInPath builds the daily sign-in request
func CheckInPath(formHash string) string {
	return "k_misign-sign.html?operation=qiandao&format=button&formhash=" + formHash
}

// LotteryPath builds the daily draw request. stamp is a cache buster in ms.
func LotteryPath(formHash string, stamp int64) string {
	return fmt.Sprintf("plugin.php?id=it618_award:ajax&ac=getaward&formhash=%s&_=%d", formHash, stamp)
}

// PokePath opens the greeting popup for a member
func PokePath(uid string) string {
	return fmt.Sprintf("home.php?mod=spacecp&ac=poke&op=send&uid=%s&inajax=1", uid)
}

// CheckInOutcome classifies the sign-in reply. ok means signed in now or
// earlier today.
func CheckInOutcome(body string) (ok, already bool) {
	switch {
	case strings.Contains(body, markerReactSucceed) || strings.Contains(body, markerCheckInOK):
		return true, false
	case strings.Contains(body, markerCheckInAlready):
		return true, true
	default:
		return false, false
	}
}

// LotteryReply is the JSON answer of the draw plugin
type LotteryReply struct {
	TipName  string `json:"tipname"`
	TipValue string `json:"tipvalue"`
}

// Won reports a successful draw
func (r LotteryReply) Won() bool { return r.TipName == "ok" }

// AlreadyDrawn reports that today's draw was used up
func (r LotteryReply) AlreadyDrawn() bool { return r.TipName == "" }

// Prize returns the tip text without markup
func (r LotteryReply) Prize() string {
	doc, err := parseHTML(r.TipValue)
	if err != nil {
		return strings.TrimSpace(r.TipValue)
	}
	return strings.TrimSpace(doc.Text())
}

// ParseLotteryReply decodes the draw plugin's JSON answer
func ParseLotteryReply(body []byte) (LotteryReply, error) {
	var reply LotteryReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return LotteryReply{}, errs.Parsing("lottery reply is not json: %s", errs.Preview(string(body), 100))
	}
	return reply, nil
}

// PokedToday reports that the member was already greeted today
func PokedToday(body string) bool {
	return strings.Contains(body, markerPokedToday)
}

// PokeForm is the greeting form found in the poke popup
type PokeForm struct {
	Action   string
	FormHash string
}

// ParsePokeForm extracts form#pokeform_<uid> from the AJAX popup
func ParsePokeForm(body, uid string) (PokeForm, error) {
	fragment := UnwrapCDATA(body)
	if fragment == body && !strings.Contains(body, "<form") {
		return PokeForm{}, errs.Parsing("poke popup has no content")
	}
	doc, err := parseHTML(fragment)
	if err != nil {
		return PokeForm{}, err
	}
	form := doc.Find("form#pokeform_" + uid)
	if form.Length() == 0 {
		return PokeForm{}, errs.Parsing("poke form for uid %s not found", uid)
	}
	pf := PokeForm{
		Action:   strings.TrimSpace(form.AttrOr("action", "")),
		FormHash: form.Find("input[name=formhash]").AttrOr("value", ""),
	}
	if pf.Action == "" {
		pf.Action = PokePath(uid)
	}
	if pf.FormHash == "" {
		return PokeForm{}, errs.Parsing("poke form for uid %s has no formhash", uid)
	}
	return pf, nil
}

// PokeFormValues builds the greeting submission
func PokeFormValues(formHash, uid string) url.Values {
	return url.Values{
		"formhash":   {formHash},
		"handlekey":  {"a_poke_" + uid},
		"pokeuid":    {uid},
		"pokesubmit": {"true"},
		"iconid":     {"3"},
		"note":       {""},
	}
}

// PokeSent reports an accepted greeting
func PokeSent(body string) bool {
	return strings.Contains(body, markerPokeSent) && strings.Contains(body, markerPokeNotify)
}

// Credit is one balance line, e.g. {血液, "35 滴"}
type Credit struct {
	Name  string
	Value string
}

// Amount returns the leading integer of the value
func (c Credit) Amount() (int, bool) {
	fields := strings.Fields(c.Value)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseCredits reads the `ul.creditl li` balance list in page order
func ParseCredits(body string) ([]Credit, error) {
	doc, err := parseHTML(body)
	if err != nil {
		return nil, err
	}
	var credits []Credit
	doc.Find("ul.creditl li").Each(func(_ int, li *goquery.Selection) {
		text := strings.Join(strings.Fields(li.Text()), " ")
		if m := creditPattern.FindStringSubmatch(text); len(m) > 2 {
			credits = append(credits, Credit{Name: strings.TrimSpace(m[1]), Value: strings.TrimSpace(m[2])})
		}
	})
	return credits, nil
}

// FindCredit looks a balance up by name
func FindCredit(credits []Credit, name string) (Credit, bool) {
	for _, c := range credits {
		if c.Name == name {
			return c, true
		}
	}
	return Credit{}, false
}

// ExchangeForm converts amount of credit from into credit to
func ExchangeForm(formHash, password string, amount, from, to int) url.Values {
	return url.Values{
		"formhash":       {formHash},
		"exchangeamount": {strconv.Itoa(amount)},
		"fromcredits":    {strconv.Itoa(from)},
		"tocredits":      {strconv.Itoa(to)},
		"exchangesubmit": {"true"},
		"password":       {password},
	}
}

// ExchangeSucceeded reports an accepted exchange
func ExchangeSucceeded(body string) bool {
	return strings.Contains(body, markerExchangeOK)
}

// ExchangeErrorReason extracts why an exchange was refused
func ExchangeErrorReason(body string) string {
	if m := exchangeErrorPattern.FindStringSubmatch(body); len(m) > 1 {
		return m[1]
	}
	return errs.Preview(strings.TrimSpace(body), 120)
}

// TaskCount is one row of the reward rule log
type TaskCount struct {
	Name  string
	Count string
	Last  string
}

// ParseTaskSummary reads table.dt, skipping the header row. A page without
// the table yields no rows.
func ParseTaskSummary(body string) ([]TaskCount, error) {
	doc, err := parseHTML(body)
	if err != nil {
		return nil, err
	}
	var rows []TaskCount
	doc.Find("table.dt").First().Find("tr").Each(func(i int, tr *goquery.Selection) {
		cols := tr.Find("td")
		if i == 0 || cols.Length() < 3 {
			return
		}
		rows = append(rows, TaskCount{
			Name:  strings.TrimSpace(cols.First().Text()),
			Count: strings.TrimSpace(cols.Eq(1).Text()),
			Last:  strings.TrimSpace(cols.Last().Text()),
		})
	})
	return rows, nil
}
