package rod

const (
	formHTML = `<!DOCTYPE html>
<html>
<head><title>Login</title></head>
<body>
	<form id="login" onsubmit="event.preventDefault(); document.getElementById('status').innerText = 'sent ' + document.getElementById('email').value;">
		<label for="email">Email</label>
		<input id="email" type="email" placeholder="you@example.com" />
		<label for="password">Password</label>
		<input id="password" type="password" />
		<select id="country" aria-label="Country">
			<option value="">Choose</option>
			<option value="US">United States</option>
			<option value="CA">Canada</option>
		</select>
		<button type="submit">Sign in</button>
	</form>
	<div id="status"></div>
	<ul>
		<li>Apple <button onclick="this.innerText='picked'">Pick</button></li>
		<li>Banana <button onclick="this.innerText='picked'">Pick</button></li>
	</ul>
	<div data-testid="footer">Footer</div>
</body>
</html>`

	tabsHTML = `<!DOCTYPE html>
<html>
<head><title>Tabs</title></head>
<body>
	<a href="/form" target="_blank">Open form</a>
</body>
</html>`

	apiHTML = `<!DOCTYPE html>
<html>
<head><title>API</title></head>
<body>
	<button onclick="fetch('/api/orders').then(r => r.json()).then(d => document.body.dataset.orders = d.count)">Load</button>
</body>
</html>`

	framedHTML = `<!DOCTYPE html>
<html>
<head><title>Portal</title></head>
<body>
	<iframe id="new-login-iframe" src="/login-frame"></iframe>
</body>
</html>`

	loginFrameHTML = `<!DOCTYPE html>
<html>
<body>
	<label for="user">User ID *</label>
	<input id="user" type="text" />
	<button onclick="document.getElementById('result').innerText = 'hello ' + document.getElementById('user').value">Login</button>
	<div id="result"></div>
</body>
</html>`
)
