package billing

import "fmt"

// Billing notification templates. Each builder returns subject, HTML body
// and plain text body for the EmailSender.

func buildSubscriptionActivatedEmail(companyName, planName, frontendURL string) (string, string, string) {
	subject := fmt.Sprintf("Your ZapTask %s plan is active", planName)
	html := fmt.Sprintf(`
		<html>
		<body>
			<h2>Subscription Activated</h2>
			<p>Hi %s,</p>
			<p>Your <strong>%s</strong> plan is now active. All plan features are unlocked for your workspace.</p>
			<p><a href="%s/settings/billing" style="background-color: #4CAF50; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">View Billing</a></p>
			<p>Thanks,<br>The ZapTask Team</p>
		</body>
		</html>
	`, companyName, planName, frontendURL)

	plain := fmt.Sprintf(`
Hi %s,

Your %s plan is now active. All plan features are unlocked for your workspace.

Manage your billing: %s/settings/billing

Thanks,
The ZapTask Team
	`, companyName, planName, frontendURL)

	return subject, html, plain
}

func buildSubscriptionCancelledEmail(companyName, frontendURL string) (string, string, string) {
	subject := "Your ZapTask subscription has ended"
	html := fmt.Sprintf(`
		<html>
		<body>
			<h2>Subscription Ended</h2>
			<p>Hi %s,</p>
			<p>Your paid subscription has ended and your workspace is now on the <strong>FREE</strong> plan.</p>
			<p>Your data is safe, but features above the free limits are locked until you upgrade again.</p>
			<p><a href="%s/settings/billing" style="background-color: #2196F3; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Choose a Plan</a></p>
			<p>Thanks,<br>The ZapTask Team</p>
		</body>
		</html>
	`, companyName, frontendURL)

	plain := fmt.Sprintf(`
Hi %s,

Your paid subscription has ended and your workspace is now on the FREE plan.

Your data is safe, but features above the free limits are locked until you upgrade again.

Choose a plan: %s/settings/billing

Thanks,
The ZapTask Team
	`, companyName, frontendURL)

	return subject, html, plain
}

func buildSubscriptionRenewedEmail(companyName, planName, nextBillingDate, frontendURL string) (string, string, string) {
	subject := fmt.Sprintf("Your ZapTask %s plan has renewed", planName)
	html := fmt.Sprintf(`
		<html>
		<body>
			<h2>Subscription Renewed</h2>
			<p>Hi %s,</p>
			<p>Your <strong>%s</strong> plan has renewed successfully. Your next billing date is <strong>%s</strong>.</p>
			<p><a href="%s/settings/billing" style="background-color: #4CAF50; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">View Invoice</a></p>
			<p>Thanks,<br>The ZapTask Team</p>
		</body>
		</html>
	`, companyName, planName, nextBillingDate, frontendURL)

	plain := fmt.Sprintf(`
Hi %s,

Your %s plan has renewed successfully. Your next billing date is %s.

View your invoices: %s/settings/billing

Thanks,
The ZapTask Team
	`, companyName, planName, nextBillingDate, frontendURL)

	return subject, html, plain
}

func buildPaymentFailedEmail(companyName, frontendURL string) (string, string, string) {
	subject := "Action required: payment failed for your ZapTask subscription"
	html := fmt.Sprintf(`
		<html>
		<body>
			<h2>Payment Failed</h2>
			<p>Hi %s,</p>
			<p>We could not collect payment for your ZapTask subscription. Your plan stays active for now, but please update your payment method to avoid losing access.</p>
			<p><a href="%s/settings/billing" style="background-color: #F44336; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Update Payment Method</a></p>
			<p>If payment keeps failing your subscription will be cancelled and your workspace moved to the FREE plan.</p>
			<p>Thanks,<br>The ZapTask Team</p>
		</body>
		</html>
	`, companyName, frontendURL)

	plain := fmt.Sprintf(`
Hi %s,

We could not collect payment for your ZapTask subscription. Your plan stays
active for now, but please update your payment method to avoid losing access.

Update your payment method: %s/settings/billing

If payment keeps failing your subscription will be cancelled and your
workspace moved to the FREE plan.

Thanks,
The ZapTask Team
	`, companyName, frontendURL)

	return subject, html, plain
}
