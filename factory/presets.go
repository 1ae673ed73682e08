package factory

import (
	"encoding/json"
)

// StandardOrganizationJSON returns an organization document with annual,
// sick and parental leave types named "<prefix>-annual", "<prefix>-sick"
// and "<prefix>-parental", one country policy with a 90-day carry-forward
// window, and the country's fixed-date public holidays when known.
func StandardOrganizationJSON(orgID, prefix, country string, annualDays, carryoverCap, noticeDays int) string {
	oj := OrganizationJSON{
		OrganizationID: orgID,
		LeaveTypes: []LeaveTypeJSON{
			{ID: prefix + "-annual", Name: "Annual Leave", Category: "annual", MaxConsecutiveDays: 15},
			{ID: prefix + "-sick", Name: "Sick Leave", Category: "sick", RequiresApproval: ptr(false)},
			{ID: prefix + "-parental", Name: "Parental Leave", Category: "paternity"},
		},
		Policies: []PolicyJSON{{
			Country:             country,
			AnnualDays:          annualDays,
			SickDays:            10,
			PaternityDays:       10,
			CarryoverCapDays:    carryoverCap,
			CarryoverExpiryDays: 90,
			NoticePeriodDays:    noticeDays,
		}},
		Holidays: FixedHolidaysJSON(country),
	}
	b, _ := json.MarshalIndent(oj, "", "  ")
	return string(b)
}

// UseItOrLoseItJSON returns a single annual leave type and a policy that
// carries nothing into the next year.
func UseItOrLoseItJSON(orgID, prefix, country string, annualDays int) string {
	oj := OrganizationJSON{
		OrganizationID: orgID,
		LeaveTypes: []LeaveTypeJSON{
			{ID: prefix + "-annual", Name: "Annual Leave", Category: "annual"},
		},
		Policies: []PolicyJSON{{Country: country, AnnualDays: annualDays}},
	}
	b, _ := json.MarshalIndent(oj, "", "  ")
	return string(b)
}

// FixedHolidaysJSON returns recurring fixed-date public holidays for a
// country. Movable feasts are left to the organization.
func FixedHolidaysJSON(country string) []HolidayJSON {
	switch country {
	case "US":
		return []HolidayJSON{
			{Country: "US", Date: "2000-01-01", Name: "New Year's Day", Recurring: true},
			{Country: "US", Date: "2000-07-04", Name: "Independence Day", Recurring: true},
			{Country: "US", Date: "2000-11-11", Name: "Veterans Day", Recurring: true},
			{Country: "US", Date: "2000-12-25", Name: "Christmas Day", Recurring: true},
		}
	case "GB":
		return []HolidayJSON{
			{Country: "GB", Date: "2000-01-01", Name: "New Year's Day", Recurring: true},
			{Country: "GB", Date: "2000-12-25", Name: "Christmas Day", Recurring: true},
			{Country: "GB", Date: "2000-12-26", Name: "Boxing Day", Recurring: true},
		}
	case "FR":
		return []HolidayJSON{
			{Country: "FR", Date: "2000-01-01", Name: "Jour de l'an", Recurring: true},
			{Country: "FR", Date: "2000-05-01", Name: "Fête du Travail", Recurring: true},
			{Country: "FR", Date: "2000-07-14", Name: "Fête nationale", Recurring: true},
			{Country: "FR", Date: "2000-12-25", Name: "Noël", Recurring: true},
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
