package extraction

// receiptPrompt is the shared extraction instruction sent to every provider.
const receiptPrompt = `Extract ONLY the following in JSON format:
{
  "merchant_name": "[name]",
  "receipt_date": "[date]",
  "amount": "[amount]"
}
Return ONLY JSON, no extra text.`
