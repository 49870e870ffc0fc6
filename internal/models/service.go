package models

// Service describes a counter service category and its typical duration.
type Service struct {
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	BaseMinutes float64 `json:"base_duration_min"`
	Variance    float64 `json:"variance_min"`
	Urgent      bool    `json:"urgent"`
}

var Services = []Service{
	{Code: "Cash_Deposit", Name: "Cash Deposit", BaseMinutes: 5, Variance: 3},
	{Code: "Cash_Withdrawal", Name: "Cash Withdrawal", BaseMinutes: 4, Variance: 2},
	{Code: "Loan_Inquiry", Name: "Loan Inquiry", BaseMinutes: 15, Variance: 5},
	{Code: "KYC_Update", Name: "KYC Update", BaseMinutes: 12, Variance: 4},
	{Code: "Forex", Name: "Forex", BaseMinutes: 20, Variance: 8},
	{Code: "Lost_Card", Name: "Lost Card", BaseMinutes: 10, Variance: 4, Urgent: true},
	{Code: "Account_Opening", Name: "Account Opening", BaseMinutes: 25, Variance: 10},
	{Code: "Fixed_Deposit", Name: "Fixed Deposit", BaseMinutes: 18, Variance: 6},
}

func ServiceByCode(code string) (Service, bool) {
	for _, svc := range Services {
		if svc.Code == code {
			return svc, true
		}
	}
	return Service{}, false
}
