// Package calendar is the gateway between a linked phone number and the
// identity's Google Calendar.
//
// Events are identified the way users created them through this service: by
// title, date and HH:MM start time. Matching slices the provider's start
// dateTime string instead of comparing instants, so an event whose start is
// reported in another offset does not match even if it is the same moment.
// When several events share a title the first one in provider order wins.
//
// Example usage:
//
//	gw := calendar.NewGateway(store, tokenManager, nil)
//	created, err := gw.CreateEvent(ctx, "+919876543210", "Standup", "2024-06-01", "09:30")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(created.HTMLLink)
package calendar
